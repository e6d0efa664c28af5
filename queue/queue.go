package queue

// Queue names shared with the consumer services.
const (
	SessionEvents    = "session_events"
	ChargingProgress = "charging_progress"
	StationStatus    = "station_status_events"
	CdrEvents        = "cdr_events"
)
