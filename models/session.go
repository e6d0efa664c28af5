package models

import "time"

type Session struct {
	SessionId     string     `json:"session_id" bson:"session_id"`
	TransactionId string     `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	StationId     string     `json:"charger_id" bson:"charger_id"`
	ConnectorId   int        `json:"connector_id" bson:"connector_id"`
	UserId        string     `json:"user_id" bson:"user_id"`
	TimeStart     time.Time  `json:"start_time" bson:"start_time"`
	TimeStop      *time.Time `json:"stop_time,omitempty" bson:"stop_time,omitempty"`
	MeterStart    int        `json:"meter_start" bson:"meter_start"`
	MeterStop     int        `json:"meter_stop" bson:"meter_stop"`
	TotalEnergy   float64    `json:"total_energy" bson:"total_energy"`
	Cost          float64    `json:"cost" bson:"cost"`
	Currency      string     `json:"currency,omitempty" bson:"currency,omitempty"`
	Status        string     `json:"status" bson:"status"`
	AuthTag       string     `json:"auth_tag,omitempty" bson:"auth_tag,omitempty"`
}

const (
	SessionStatusPending   = "pending"
	SessionStatusActive    = "active"
	SessionStatusStopping  = "stopping"
	SessionStatusCompleted = "completed"
	SessionStatusError     = "error"
	SessionStatusFailed    = "failed"
	SessionStatusStopped   = "stopped"
)

// Energy recomputes the accumulated energy from the meter readings,
// clamped at zero so a meter reset never produces a negative value.
func (s *Session) Energy() float64 {
	energy := float64(s.MeterStop - s.MeterStart)
	if energy < 0 {
		return 0
	}
	return energy
}
