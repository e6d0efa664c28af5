package models

import "time"

// Queue payloads consumed by collaborating services. Field names follow the
// wire format those collaborators already read.

type SessionStartedEvent struct {
	SessionId     string    `json:"sessionId"`
	TransactionId string    `json:"transactionId"`
	StationId     string    `json:"chargerId"`
	ConnectorId   int       `json:"connectorId"`
	UserId        string    `json:"userId"`
	Timestamp     time.Time `json:"timestamp"`
}

type ChargingProgressEvent struct {
	SessionId      string    `json:"sessionId"`
	UserId         string    `json:"userId"`
	TransactionId  string    `json:"transactionId"`
	EnergyConsumed float64   `json:"energyConsumed"`
	Power          float64   `json:"power"`
	Soc            *float64  `json:"soc"`
	Timestamp      time.Time `json:"timestamp"`
}

type StationStatusEvent struct {
	StationId   string    `json:"chargerId"`
	ConnectorId int       `json:"connectorId"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"errorCode"`
	Timestamp   time.Time `json:"timestamp"`
}

// SettlementEvent one per completed or ended session; an empty UserId means
// no session was associated and billing must be skipped.
type SettlementEvent struct {
	TransactionId string    `json:"transactionId"`
	StationId     string    `json:"chargerId"`
	MeterStop     int       `json:"meterStop"`
	Timestamp     time.Time `json:"timestamp"`
	TotalEnergy   float64   `json:"totalEnergy"`
	UserId        string    `json:"userId"`
	SessionId     string    `json:"sessionId"`
}
