package server

import (
	"fmt"
	"time"

	"csms/internal"
	"csms/models"
	"csms/ocpp/v201"
	"csms/queue"
	"csms/types"
	"csms/utility"
)

// SystemHandlerV201 serves the OCPP 2.0.1 feature set. Sessions land in the
// same store as 1.6 ones, with the station-assigned transaction id kept as is.
type SystemHandlerV201 struct {
	database          internal.Database
	logger            internal.LogHandler
	publisher         internal.EventPublisher
	eventListeners    []internal.EventListener
	location          *time.Location
	heartbeatInterval int
}

func NewSystemHandlerV201(location *time.Location, heartbeatInterval int) *SystemHandlerV201 {
	return &SystemHandlerV201{
		location:          location,
		heartbeatInterval: heartbeatInterval,
	}
}

func (h *SystemHandlerV201) SetDatabase(database internal.Database) {
	h.database = database
}

func (h *SystemHandlerV201) SetLogger(logger internal.LogHandler) {
	h.logger = logger
}

func (h *SystemHandlerV201) SetPublisher(publisher internal.EventPublisher) {
	h.publisher = publisher
}

func (h *SystemHandlerV201) AddEventListener(listener internal.EventListener) {
	h.eventListeners = append(h.eventListeners, listener)
}

func (h *SystemHandlerV201) publish(queueName string, payload interface{}) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(queueName, payload); err != nil {
		h.logger.Error(fmt.Sprintf("publishing to %s", queueName), err)
	}
}

func (h *SystemHandlerV201) now() time.Time {
	return time.Now().In(h.location)
}

func (h *SystemHandlerV201) OnBootNotification(stationId string, request *v201.BootNotificationRequest) (*v201.BootNotificationResponse, error) {
	station, err := h.database.GetStation(stationId)
	if err != nil {
		return nil, err
	}
	if station != nil {
		station.Vendor = request.ChargingStation.VendorName
		station.Model = request.ChargingStation.Model
		station.SerialNumber = request.ChargingStation.SerialNumber
		station.FirmwareVersion = request.ChargingStation.FirmwareVersion
		if err = h.database.UpdateStation(station); err != nil {
			h.logger.Error(fmt.Sprintf("updating station %s", stationId), err)
		}
	}
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("boot confirmed; reason: %s; vendor: %s", request.Reason, request.ChargingStation.VendorName))
	return v201.NewBootNotificationResponse(types.NewDateTime(h.now()), h.heartbeatInterval, v201.RegistrationStatusAccepted), nil
}

func (h *SystemHandlerV201) OnHeartbeat(stationId string, request *v201.HeartbeatRequest) (*v201.HeartbeatResponse, error) {
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("%v", h.now()))
	return v201.NewHeartbeatResponse(types.NewDateTime(h.now())), nil
}

// OnStatusNotification maps the evse id onto the connector store, falling
// back to the connector id when the evse id is zero.
func (h *SystemHandlerV201) OnStatusNotification(stationId string, request *v201.StatusNotificationRequest) (*v201.StatusNotificationResponse, error) {
	connectorId := request.EvseId
	if connectorId == 0 {
		connectorId = request.ConnectorId
	}
	status := string(request.ConnectorStatus)
	if connectorId > 0 {
		if err := h.database.UpdateConnectorStatus(stationId, connectorId, status); err != nil {
			h.logger.Error(fmt.Sprintf("updating connector #%v of station %s", connectorId, stationId), err)
		}
		if err := h.database.UpdateStationStatus(stationId, models.StationStatusOnline); err != nil {
			h.logger.Error(fmt.Sprintf("updating status of station %s", stationId), err)
		}
	}

	h.publish(queue.StationStatus, models.StationStatusEvent{
		StationId:   stationId,
		ConnectorId: connectorId,
		Status:      status,
		Timestamp:   h.now(),
	})
	h.notifyEventListeners(&internal.EventMessage{
		Type:        eventStatusNotification,
		StationId:   stationId,
		ConnectorId: connectorId,
		Time:        h.now(),
		Status:      status,
	})
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("evse %v connector #%v status %v", request.EvseId, request.ConnectorId, request.ConnectorStatus))
	return v201.NewStatusNotificationResponse(), nil
}

func (h *SystemHandlerV201) OnTransactionEvent(stationId string, request *v201.TransactionEventRequest) (*v201.TransactionEventResponse, error) {
	switch request.EventType {
	case v201.TransactionEventStarted:
		h.onTransactionStarted(stationId, request)
	case v201.TransactionEventUpdated:
		// meter samples inside updates are not tracked
	case v201.TransactionEventEnded:
		h.onTransactionEnded(stationId, request)
	}

	response := v201.NewTransactionEventResponse()
	if request.IdToken != nil {
		response.IdTokenInfo = &v201.IdTokenInfo{Status: types.AuthorizationStatusAccepted}
	}
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("%s transaction %s", request.EventType, request.TransactionInfo.TransactionId))
	return response, nil
}

func (h *SystemHandlerV201) onTransactionStarted(stationId string, request *v201.TransactionEventRequest) {
	connectorId := 1
	if request.Evse != nil {
		connectorId = request.Evse.Id
	}
	userId := "unknown"
	authTag := ""
	if request.IdToken != nil {
		userId = request.IdToken.IdToken
		authTag = request.IdToken.IdToken
	}
	startTime := h.now()
	if request.Timestamp != nil {
		startTime = request.Timestamp.Time
	}
	session := &models.Session{
		SessionId:     utility.NewUUID(),
		TransactionId: request.TransactionInfo.TransactionId,
		StationId:     stationId,
		ConnectorId:   connectorId,
		UserId:        userId,
		TimeStart:     startTime,
		MeterStart:    int(firstMeterReading(request.MeterValue)),
		Status:        models.SessionStatusActive,
		AuthTag:       authTag,
	}
	if err := h.database.AddSession(session); err != nil {
		h.logger.Error(fmt.Sprintf("adding session for transaction %s", session.TransactionId), err)
		return
	}
	metricsActiveSessions.Inc()

	h.publish(queue.SessionEvents, models.SessionStartedEvent{
		SessionId:     session.SessionId,
		TransactionId: session.TransactionId,
		StationId:     stationId,
		ConnectorId:   connectorId,
		UserId:        userId,
		Timestamp:     h.now(),
	})
	h.notifyEventListeners(&internal.EventMessage{
		Type:          eventSessionStart,
		StationId:     stationId,
		ConnectorId:   connectorId,
		Time:          h.now(),
		Username:      userId,
		IdTag:         authTag,
		TransactionId: session.TransactionId,
		SessionId:     session.SessionId,
		Status:        session.Status,
	})
}

func (h *SystemHandlerV201) onTransactionEnded(stationId string, request *v201.TransactionEventRequest) {
	transactionId := request.TransactionInfo.TransactionId
	meterStop := int(firstMeterReading(request.MeterValue))

	session, err := h.database.GetSessionByTransaction(transactionId)
	if err != nil {
		h.logger.Error(fmt.Sprintf("session lookup for transaction %s", transactionId), err)
	}
	totalEnergy := 0.0
	userId := ""
	sessionId := ""
	if session != nil {
		stopTime := h.now()
		if request.Timestamp != nil {
			stopTime = request.Timestamp.Time
		}
		session.TimeStop = &stopTime
		session.MeterStop = meterStop
		session.TotalEnergy = session.Energy()
		session.Status = models.SessionStatusCompleted
		if err = h.database.UpdateSession(session); err != nil {
			h.logger.Error(fmt.Sprintf("updating session %s", session.SessionId), err)
		}
		totalEnergy = session.TotalEnergy
		userId = session.UserId
		sessionId = session.SessionId
		metricsActiveSessions.Dec()
	} else {
		h.logger.Warn(fmt.Sprintf("session not found for transaction %s", transactionId))
		if request.IdToken != nil {
			userId = request.IdToken.IdToken
		}
	}

	h.publish(queue.CdrEvents, models.SettlementEvent{
		TransactionId: transactionId,
		StationId:     stationId,
		MeterStop:     meterStop,
		Timestamp:     h.now(),
		TotalEnergy:   totalEnergy,
		UserId:        userId,
		SessionId:     sessionId,
	})
	h.notifyEventListeners(&internal.EventMessage{
		Type:          eventSessionStop,
		StationId:     stationId,
		Time:          h.now(),
		Username:      userId,
		TransactionId: transactionId,
		SessionId:     sessionId,
		Status:        models.SessionStatusCompleted,
	})
}

func (h *SystemHandlerV201) notifyEventListeners(message *internal.EventMessage) {
	for _, listener := range h.eventListeners {
		switch message.Type {
		case eventSessionStart:
			listener.OnSessionStart(message)
		case eventSessionStop:
			listener.OnSessionStop(message)
		case eventStatusNotification:
			listener.OnStatusNotification(message)
		}
	}
}

// firstMeterReading takes the first sample of the first meter value, the way
// stations commonly report the energy register on transaction events.
func firstMeterReading(meterValues []v201.MeterValue) float64 {
	if len(meterValues) == 0 {
		return 0
	}
	samples := meterValues[0].SampledValue
	if len(samples) == 0 {
		return 0
	}
	return samples[0].Value
}
