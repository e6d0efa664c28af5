package models

type Tariff struct {
	Id             string       `json:"tariff_id" bson:"tariff_id"`
	Name           string       `json:"name" bson:"name"`
	Type           string       `json:"type" bson:"type"`
	Currency       string       `json:"currency" bson:"currency"`
	PricePerKwh    float64      `json:"price_per_kwh" bson:"price_per_kwh"`
	IdleFeePerMin  float64      `json:"idle_fee_per_min" bson:"idle_fee_per_min"`
	PeakMultiplier float64      `json:"peak_multiplier" bson:"peak_multiplier"`
	PeakHours      []PeakWindow `json:"peak_hours" bson:"peak_hours"`
}

// PeakWindow times are minute-of-day boundaries in "HH:MM" form;
// windows crossing midnight are not supported.
type PeakWindow struct {
	StartTime string `json:"start_time" bson:"start_time"`
	EndTime   string `json:"end_time" bson:"end_time"`
}

const (
	TariffTypeFlat      = "FLAT"
	TariffTypeTimeOfUse = "TOU"
)
