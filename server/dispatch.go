package server

import (
	"reflect"

	"csms/ocpp"
	"csms/ocpp/core"
	"csms/ocpp/v201"
	"csms/types"
)

// HandlerFunc serves one decoded request from a station.
type HandlerFunc func(stationId string, request ocpp.Request) (ocpp.Response, error)

// Feature binds an action name to its request payload type and handler.
// The table for the negotiated protocol version is resolved once during the
// handshake and attached to the connection.
type Feature struct {
	RequestType reflect.Type
	Handle      HandlerFunc
}

func dispatchTable16(h *SystemHandler) map[string]Feature {
	return map[string]Feature{
		core.BootNotificationFeatureName: {
			RequestType: reflect.TypeOf(core.BootNotificationRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnBootNotification(id, request.(*core.BootNotificationRequest))
			},
		},
		core.AuthorizeFeatureName: {
			RequestType: reflect.TypeOf(core.AuthorizeRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnAuthorize(id, request.(*core.AuthorizeRequest))
			},
		},
		core.HeartbeatFeatureName: {
			RequestType: reflect.TypeOf(core.HeartbeatRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnHeartbeat(id, request.(*core.HeartbeatRequest))
			},
		},
		core.StartTransactionFeatureName: {
			RequestType: reflect.TypeOf(core.StartTransactionRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnStartTransaction(id, request.(*core.StartTransactionRequest))
			},
		},
		core.StopTransactionFeatureName: {
			RequestType: reflect.TypeOf(core.StopTransactionRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnStopTransaction(id, request.(*core.StopTransactionRequest))
			},
		},
		core.MeterValuesFeatureName: {
			RequestType: reflect.TypeOf(core.MeterValuesRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnMeterValues(id, request.(*core.MeterValuesRequest))
			},
		},
		core.StatusNotificationFeatureName: {
			RequestType: reflect.TypeOf(core.StatusNotificationRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnStatusNotification(id, request.(*core.StatusNotificationRequest))
			},
		},
	}
}

func dispatchTable201(h *SystemHandlerV201) map[string]Feature {
	return map[string]Feature{
		v201.BootNotificationFeatureName: {
			RequestType: reflect.TypeOf(v201.BootNotificationRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnBootNotification(id, request.(*v201.BootNotificationRequest))
			},
		},
		v201.HeartbeatFeatureName: {
			RequestType: reflect.TypeOf(v201.HeartbeatRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnHeartbeat(id, request.(*v201.HeartbeatRequest))
			},
		},
		v201.StatusNotificationFeatureName: {
			RequestType: reflect.TypeOf(v201.StatusNotificationRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnStatusNotification(id, request.(*v201.StatusNotificationRequest))
			},
		},
		v201.TransactionEventFeatureName: {
			RequestType: reflect.TypeOf(v201.TransactionEventRequest{}),
			Handle: func(id string, request ocpp.Request) (ocpp.Response, error) {
				return h.OnTransactionEvent(id, request.(*v201.TransactionEventRequest))
			},
		},
	}
}

// resolveDispatch picks the feature table for a negotiated protocol version.
// Versions 2.0 and 2.0.1 share one table.
func resolveDispatch(version string, table16, table201 map[string]Feature) map[string]Feature {
	switch version {
	case types.Version16:
		return table16
	case types.Version20, types.Version201:
		return table201
	default:
		return nil
	}
}
