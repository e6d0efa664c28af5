package v201

import "csms/types"

const TransactionEventFeatureName = "TransactionEvent"

type TransactionEventType string

const (
	TransactionEventStarted TransactionEventType = "Started"
	TransactionEventUpdated TransactionEventType = "Updated"
	TransactionEventEnded   TransactionEventType = "Ended"
)

type IdToken struct {
	IdToken string `json:"idToken" validate:"required,max=36"`
	Type    string `json:"type" validate:"required"`
}

type IdTokenInfo struct {
	Status      types.AuthorizationStatus `json:"status" validate:"required"`
	CacheExpiry *types.DateTime           `json:"cacheExpiryDateTime,omitempty"`
}

type Evse struct {
	Id          int `json:"id" validate:"gt=0"`
	ConnectorId int `json:"connectorId,omitempty" validate:"omitempty,gt=0"`
}

type TransactionInfo struct {
	TransactionId string `json:"transactionId" validate:"required,max=36"`
	ChargingState string `json:"chargingState,omitempty"`
	StoppedReason string `json:"stoppedReason,omitempty"`
}

type SampledValue struct {
	Value         float64        `json:"value"`
	Measurand     string         `json:"measurand,omitempty"`
	Context       string         `json:"context,omitempty"`
	UnitOfMeasure *UnitOfMeasure `json:"unitOfMeasure,omitempty"`
}

type UnitOfMeasure struct {
	Unit       string `json:"unit,omitempty"`
	Multiplier int    `json:"multiplier,omitempty"`
}

type MeterValue struct {
	Timestamp    *types.DateTime `json:"timestamp" validate:"required"`
	SampledValue []SampledValue  `json:"sampledValue" validate:"required,min=1,dive"`
}

type TransactionEventRequest struct {
	EventType       TransactionEventType `json:"eventType" validate:"required"`
	Timestamp       *types.DateTime      `json:"timestamp" validate:"required"`
	TriggerReason   string               `json:"triggerReason" validate:"required"`
	SeqNo           int                  `json:"seqNo" validate:"gte=0"`
	TransactionInfo TransactionInfo      `json:"transactionInfo" validate:"required"`
	Evse            *Evse                `json:"evse,omitempty"`
	IdToken         *IdToken             `json:"idToken,omitempty"`
	MeterValue      []MeterValue         `json:"meterValue,omitempty" validate:"omitempty,dive"`
}

type TransactionEventResponse struct {
	TotalCost   *float64     `json:"totalCost,omitempty"`
	IdTokenInfo *IdTokenInfo `json:"idTokenInfo,omitempty"`
}

func (r TransactionEventRequest) GetFeatureName() string {
	return TransactionEventFeatureName
}

func (c TransactionEventResponse) GetFeatureName() string {
	return TransactionEventFeatureName
}

func NewTransactionEventResponse() *TransactionEventResponse {
	return &TransactionEventResponse{}
}
