package internal

import "time"

// EventPublisher pushes domain events to the durable queue for
// collaborating services; delivery is at least once.
type EventPublisher interface {
	Publish(queue string, payload interface{}) error
}

// EventListener receives in-process notifications of domain events.
type EventListener interface {
	OnStatusNotification(event *EventMessage)
	OnSessionStart(event *EventMessage)
	OnSessionStop(event *EventMessage)
	OnAuthorize(event *EventMessage)
}

type EventMessage struct {
	Type          string    `json:"type" bson:"type"`
	StationId     string    `json:"charger_id" bson:"charger_id"`
	ConnectorId   int       `json:"connector_id" bson:"connector_id"`
	Time          time.Time `json:"time" bson:"time"`
	Username      string    `json:"username" bson:"username"`
	IdTag         string    `json:"id_tag" bson:"id_tag"`
	TransactionId string    `json:"transaction_id" bson:"transaction_id"`
	SessionId     string    `json:"session_id" bson:"session_id"`
	Status        string    `json:"status" bson:"status"`
	Info          string    `json:"info" bson:"info"`
}
