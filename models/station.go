package models

type Station struct {
	Id              string      `json:"charger_id" bson:"charger_id"`
	Name            string      `json:"name" bson:"name"`
	Status          string      `json:"status" bson:"status"`
	MaxPowerKw      float64     `json:"max_power_kw" bson:"max_power_kw"`
	TariffId        string      `json:"tariff_id,omitempty" bson:"tariff_id,omitempty"`
	SiteId          string      `json:"site_id,omitempty" bson:"site_id,omitempty"`
	Vendor          string      `json:"vendor" bson:"vendor"`
	Model           string      `json:"model_name" bson:"model_name"`
	SerialNumber    string      `json:"serial_number" bson:"serial_number"`
	FirmwareVersion string      `json:"firmware_version" bson:"firmware_version"`
	Address         string      `json:"ip_address" bson:"ip_address"`
	Secret          string      `json:"ocpp_password,omitempty" bson:"ocpp_password,omitempty"`
	Connectors      []Connector `json:"connectors" bson:"connectors"`
}

type Connector struct {
	Id         int     `json:"connector_id" bson:"connector_id"`
	Status     string  `json:"status" bson:"status"`
	Type       string  `json:"type" bson:"type"`
	MaxPowerKw float64 `json:"max_power_kw" bson:"max_power_kw"`
}

const (
	StationStatusOnline  = "online"
	StationStatusOffline = "offline"
)
