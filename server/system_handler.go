package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"csms/internal"
	"csms/models"
	"csms/ocpp/core"
	"csms/queue"
	"csms/types"
	"csms/utility"
)

const minimumWalletBalance = 10

// SmartCharging recalculates per-connector limits after a transaction start.
type SmartCharging interface {
	ApplyLoadBalancing(stationId string, connectorId int)
}

// SystemHandler serves the OCPP 1.6 feature set.
type SystemHandler struct {
	database          internal.Database
	logger            internal.LogHandler
	publisher         internal.EventPublisher
	smartCharging     SmartCharging
	eventListeners    []internal.EventListener
	location          *time.Location
	heartbeatInterval int
}

func NewSystemHandler(location *time.Location, heartbeatInterval int) *SystemHandler {
	return &SystemHandler{
		location:          location,
		heartbeatInterval: heartbeatInterval,
	}
}

func (h *SystemHandler) SetDatabase(database internal.Database) {
	h.database = database
}

func (h *SystemHandler) SetLogger(logger internal.LogHandler) {
	h.logger = logger
}

func (h *SystemHandler) SetPublisher(publisher internal.EventPublisher) {
	h.publisher = publisher
}

func (h *SystemHandler) SetSmartCharging(smartCharging SmartCharging) {
	h.smartCharging = smartCharging
}

func (h *SystemHandler) AddEventListener(listener internal.EventListener) {
	h.eventListeners = append(h.eventListeners, listener)
}

func (h *SystemHandler) publish(queueName string, payload interface{}) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(queueName, payload); err != nil {
		h.logger.Error(fmt.Sprintf("publishing to %s", queueName), err)
	}
}

func (h *SystemHandler) now() time.Time {
	return time.Now().In(h.location)
}

func (h *SystemHandler) OnBootNotification(stationId string, request *core.BootNotificationRequest) (*core.BootNotificationResponse, error) {
	station, err := h.database.GetStation(stationId)
	if err != nil {
		return nil, err
	}
	if station != nil {
		station.Vendor = request.ChargePointVendor
		station.Model = request.ChargePointModel
		station.SerialNumber = request.ChargePointSerialNumber
		station.FirmwareVersion = request.FirmwareVersion
		if err = h.database.UpdateStation(station); err != nil {
			h.logger.Error(fmt.Sprintf("updating station %s", stationId), err)
		}
	}
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("boot confirmed; vendor: %s; model: %s", request.ChargePointVendor, request.ChargePointModel))
	return core.NewBootNotificationResponse(types.NewDateTime(h.now()), h.heartbeatInterval, core.RegistrationStatusAccepted), nil
}

func (h *SystemHandler) OnAuthorize(stationId string, request *core.AuthorizeRequest) (*core.AuthorizeResponse, error) {
	user, err := h.database.GetUserByTag(request.IdTag)
	if err != nil {
		return nil, err
	}
	status := types.AuthorizationStatusAccepted
	var idTagInfo *types.IdTagInfo
	if user == nil {
		status = types.AuthorizationStatusInvalid
		idTagInfo = types.NewIdTagInfo(status)
	} else if !user.IsEnabled || user.WalletBalance < minimumWalletBalance {
		status = types.AuthorizationStatusBlocked
		idTagInfo = types.NewIdTagInfo(status)
	} else {
		idTagInfo = types.NewIdTagInfo(status)
		idTagInfo.ExpiryDate = types.NewDateTime(h.now().AddDate(0, 0, 30))
	}

	username := ""
	if user != nil {
		username = user.Username
	}
	h.notifyEventListeners(&internal.EventMessage{
		Type:      eventAuthorize,
		StationId: stationId,
		Time:      h.now(),
		Username:  username,
		IdTag:     request.IdTag,
		Status:    string(status),
	})
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("id tag: %s; authorization status: %s", request.IdTag, status))
	return core.NewAuthorizeResponse(idTagInfo), nil
}

func (h *SystemHandler) OnHeartbeat(stationId string, request *core.HeartbeatRequest) (*core.HeartbeatResponse, error) {
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("%v", h.now()))
	return core.NewHeartbeatResponse(types.NewDateTime(h.now())), nil
}

// OnStartTransaction binds the most recent pending session opened for the
// connector by a remote command, falling back to a fresh ad-hoc session when
// none is waiting.
func (h *SystemHandler) OnStartTransaction(stationId string, request *core.StartTransactionRequest) (*core.StartTransactionResponse, error) {
	transactionId := int(time.Now().Unix())
	startTime := h.now()
	if request.Timestamp != nil {
		startTime = request.Timestamp.Time
	}

	session, err := h.database.FindPendingSession(stationId, request.ConnectorId)
	if err != nil {
		h.logger.Error(fmt.Sprintf("pending session lookup for station %s", stationId), err)
	}
	if session != nil {
		session.TransactionId = strconv.Itoa(transactionId)
		session.TimeStart = startTime
		session.MeterStart = request.MeterStart
		session.Status = models.SessionStatusActive
		session.AuthTag = request.IdTag
		if err = h.database.UpdateSession(session); err != nil {
			return nil, err
		}
	} else {
		session = &models.Session{
			SessionId:     utility.NewUUID(),
			TransactionId: strconv.Itoa(transactionId),
			StationId:     stationId,
			ConnectorId:   request.ConnectorId,
			UserId:        request.IdTag,
			TimeStart:     startTime,
			MeterStart:    request.MeterStart,
			Status:        models.SessionStatusActive,
			AuthTag:       request.IdTag,
		}
		if err = h.database.AddSession(session); err != nil {
			return nil, err
		}
	}
	metricsActiveSessions.Inc()

	h.publish(queue.SessionEvents, models.SessionStartedEvent{
		SessionId:     session.SessionId,
		TransactionId: session.TransactionId,
		StationId:     stationId,
		ConnectorId:   request.ConnectorId,
		UserId:        session.UserId,
		Timestamp:     h.now(),
	})
	h.notifyEventListeners(&internal.EventMessage{
		Type:          eventSessionStart,
		StationId:     stationId,
		ConnectorId:   request.ConnectorId,
		Time:          h.now(),
		Username:      session.UserId,
		IdTag:         request.IdTag,
		TransactionId: session.TransactionId,
		SessionId:     session.SessionId,
		Status:        session.Status,
	})

	if h.smartCharging != nil {
		go h.smartCharging.ApplyLoadBalancing(stationId, request.ConnectorId)
	}

	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("started transaction #%v for connector %v", transactionId, request.ConnectorId))
	return core.NewStartTransactionResponse(types.NewIdTagInfo(types.AuthorizationStatusAccepted), transactionId), nil
}

// OnStopTransaction closes the session and hands the consumption record to
// the settlement pipeline. A session lookup miss is logged but the station
// still gets an accepted response.
func (h *SystemHandler) OnStopTransaction(stationId string, request *core.StopTransactionRequest) (*core.StopTransactionResponse, error) {
	transactionId := strconv.Itoa(request.TransactionId)
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
		session.MeterStop = request.MeterStop
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
	}

	h.publish(queue.CdrEvents, models.SettlementEvent{
		TransactionId: transactionId,
		StationId:     stationId,
		MeterStop:     request.MeterStop,
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
		IdTag:         request.IdTag,
		TransactionId: transactionId,
		SessionId:     sessionId,
		Status:        models.SessionStatusCompleted,
		Info:          fmt.Sprintf("%v", request.Reason),
	})

	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("stopped transaction %v %v", request.TransactionId, request.Reason))
	return core.NewStopTransactionResponse(), nil
}

func (h *SystemHandler) OnMeterValues(stationId string, request *core.MeterValuesRequest) (*core.MeterValuesResponse, error) {
	if request.TransactionId == nil {
		return core.NewMeterValuesResponse(), nil
	}
	transactionId := strconv.Itoa(*request.TransactionId)
	session, err := h.database.GetSessionByTransaction(transactionId)
	if err != nil {
		h.logger.Error(fmt.Sprintf("session lookup for transaction %s", transactionId), err)
	}
	if session == nil {
		return core.NewMeterValuesResponse(), nil
	}

	energyRegister, hasEnergy := firstSampledValue(request.MeterValue, types.MeasurandEnergyActiveImportRegister)
	powerImport, _ := firstSampledValue(request.MeterValue, types.MeasurandPowerActiveImport)
	socValue, hasSoc := firstSampledValue(request.MeterValue, types.MeasurandSoC)

	if hasEnergy {
		if currentEnergy, err := strconv.ParseFloat(energyRegister, 64); err == nil {
			total := currentEnergy - float64(session.MeterStart)
			if total < 0 {
				total = 0
			}
			session.TotalEnergy = total
			if err = h.database.UpdateSession(session); err != nil {
				h.logger.Error(fmt.Sprintf("updating session %s", session.SessionId), err)
			}
		}
	}

	var soc *float64
	if hasSoc {
		value := utility.ToFloat(socValue)
		soc = &value
	}
	h.publish(queue.ChargingProgress, models.ChargingProgressEvent{
		SessionId:      session.SessionId,
		UserId:         session.UserId,
		TransactionId:  transactionId,
		EnergyConsumed: session.TotalEnergy,
		Power:          utility.ToFloat(powerImport),
		Soc:            soc,
		Timestamp:      h.now(),
	})

	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("received meter values for connector #%v", request.ConnectorId))
	return core.NewMeterValuesResponse(), nil
}

func (h *SystemHandler) OnStatusNotification(stationId string, request *core.StatusNotificationRequest) (*core.StatusNotificationResponse, error) {
	status := string(request.Status)
	if request.ConnectorId > 0 {
		if err := h.database.UpdateConnectorStatus(stationId, request.ConnectorId, status); err != nil {
			h.logger.Error(fmt.Sprintf("updating connector #%v of station %s", request.ConnectorId, stationId), err)
		}
		h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("updated connector #%v status to %v", request.ConnectorId, request.Status))
	} else {
		stationStatus := models.StationStatusOnline
		if request.Status != core.ChargePointStatusAvailable {
			stationStatus = strings.ToLower(status)
		}
		if err := h.database.UpdateStationStatus(stationId, stationStatus); err != nil {
			h.logger.Error(fmt.Sprintf("updating status of station %s", stationId), err)
		}
		h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("updated station status to %v", request.Status))
	}

	h.publish(queue.StationStatus, models.StationStatusEvent{
		StationId:   stationId,
		ConnectorId: request.ConnectorId,
		Status:      status,
		ErrorCode:   string(request.ErrorCode),
		Timestamp:   h.now(),
	})
	h.notifyEventListeners(&internal.EventMessage{
		Type:        eventStatusNotification,
		StationId:   stationId,
		ConnectorId: request.ConnectorId,
		Time:        h.now(),
		Status:      status,
		Info:        string(request.ErrorCode),
	})
	return core.NewStatusNotificationResponse(), nil
}

const (
	eventAuthorize          = "Authorize"
	eventSessionStart       = "SessionStart"
	eventSessionStop        = "SessionStop"
	eventStatusNotification = "StatusNotification"
)

func (h *SystemHandler) notifyEventListeners(message *internal.EventMessage) {
	for _, listener := range h.eventListeners {
		switch message.Type {
		case eventAuthorize:
			listener.OnAuthorize(message)
		case eventSessionStart:
			listener.OnSessionStart(message)
		case eventSessionStop:
			listener.OnSessionStop(message)
		case eventStatusNotification:
			listener.OnStatusNotification(message)
		}
	}
}

// firstSampledValue returns the first sample matching the measurand across
// all meter values; a sample with no measurand counts as the energy register.
func firstSampledValue(meterValues []types.MeterValue, measurand types.Measurand) (string, bool) {
	for _, meterValue := range meterValues {
		for _, sample := range meterValue.SampledValue {
			m := sample.Measurand
			if m == "" {
				m = types.MeasurandEnergyActiveImportRegister
			}
			if m == measurand {
				return sample.Value, true
			}
		}
	}
	return "", false
}
