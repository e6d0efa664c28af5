package power

import "csms/ocpp"

type Handler interface {
	SendRequest(stationId string, request ocpp.Request) (string, error)
}
