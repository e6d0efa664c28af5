package server

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csms/internal"
	"csms/models"
	"csms/ocpp/core"
	"csms/queue"
	"csms/types"
)

// fakeDatabase is shared by the handler tests and the gateway tests; the
// latter write station status from server goroutines.
type fakeDatabase struct {
	mu              sync.Mutex
	stations        map[string]*models.Station
	users           map[string]*models.User
	sessions        []*models.Session
	tariffs         map[string]*models.Tariff
	ledger          []*models.LedgerEntry
	stationStatus   map[string]string
	connectorStatus map[int]string
	balanceByEmail  map[string]float64
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		stations:        make(map[string]*models.Station),
		users:           make(map[string]*models.User),
		tariffs:         make(map[string]*models.Tariff),
		stationStatus:   make(map[string]string),
		connectorStatus: make(map[int]string),
		balanceByEmail:  make(map[string]float64),
	}
}

func (f *fakeDatabase) WriteLogMessage(internal.Data) error { return nil }

func (f *fakeDatabase) GetStation(id string) (*models.Station, error) {
	return f.stations[id], nil
}

func (f *fakeDatabase) UpdateStation(station *models.Station) error {
	f.stations[station.Id] = station
	return nil
}

func (f *fakeDatabase) UpdateStationStatus(id, status string) error {
	f.mu.Lock()
	f.stationStatus[id] = status
	f.mu.Unlock()
	return nil
}

func (f *fakeDatabase) stationStatusOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stationStatus[id]
}

func (f *fakeDatabase) UpdateStationAddress(string, string) error { return nil }

func (f *fakeDatabase) UpdateConnectorStatus(stationId string, connectorId int, status string) error {
	f.connectorStatus[connectorId] = status
	return nil
}

func (f *fakeDatabase) GetUserByTag(idTag string) (*models.User, error) {
	for _, user := range f.users {
		if user.Email == idTag || user.RfidTag == idTag {
			return user, nil
		}
	}
	return nil, nil
}

func (f *fakeDatabase) UpdateUserBalance(email string, balance float64) error {
	f.balanceByEmail[email] = balance
	return nil
}

func (f *fakeDatabase) AddSession(session *models.Session) error {
	f.sessions = append(f.sessions, session)
	return nil
}

func (f *fakeDatabase) UpdateSession(session *models.Session) error {
	for i, stored := range f.sessions {
		if stored.SessionId == session.SessionId {
			f.sessions[i] = session
			return nil
		}
	}
	f.sessions = append(f.sessions, session)
	return nil
}

func (f *fakeDatabase) GetSession(sessionId string) (*models.Session, error) {
	for _, session := range f.sessions {
		if session.SessionId == sessionId {
			return session, nil
		}
	}
	return nil, nil
}

func (f *fakeDatabase) GetSessionByTransaction(transactionId string) (*models.Session, error) {
	for _, session := range f.sessions {
		if session.TransactionId == transactionId {
			return session, nil
		}
	}
	return nil, nil
}

func (f *fakeDatabase) FindPendingSession(stationId string, connectorId int) (*models.Session, error) {
	var latest *models.Session
	for _, session := range f.sessions {
		if session.StationId != stationId || session.ConnectorId != connectorId {
			continue
		}
		if session.Status != models.SessionStatusPending {
			continue
		}
		if latest == nil || session.TimeStart.After(latest.TimeStart) {
			latest = session
		}
	}
	return latest, nil
}

func (f *fakeDatabase) GetActiveSessions(stationId string) ([]*models.Session, error) {
	var active []*models.Session
	for _, session := range f.sessions {
		if session.StationId == stationId && session.Status == models.SessionStatusActive {
			active = append(active, session)
		}
	}
	return active, nil
}

func (f *fakeDatabase) GetTariff(id string) (*models.Tariff, error) {
	return f.tariffs[id], nil
}

func (f *fakeDatabase) AddLedgerEntry(entry *models.LedgerEntry) error {
	f.ledger = append(f.ledger, entry)
	return nil
}

func (f *fakeDatabase) GetLedgerEntry(transactionId string) (*models.LedgerEntry, error) {
	for _, entry := range f.ledger {
		if entry.TransactionId == transactionId {
			return entry, nil
		}
	}
	return nil, nil
}

func (f *fakeDatabase) GetSubscriptions() ([]models.UserSubscription, error) { return nil, nil }
func (f *fakeDatabase) AddSubscription(*models.UserSubscription) error       { return nil }
func (f *fakeDatabase) DeleteSubscription(*models.UserSubscription) error    { return nil }

type nopLogger struct{}

func (nopLogger) FeatureEvent(string, string, string) {}
func (nopLogger) Debug(string)                        {}
func (nopLogger) Warn(string)                         {}
func (nopLogger) Error(string, error)                 {}
func (nopLogger) RawDataEvent(string, string)         {}

type published struct {
	queue   string
	payload interface{}
}

type capturePublisher struct {
	messages []published
}

func (p *capturePublisher) Publish(queue string, payload interface{}) error {
	p.messages = append(p.messages, published{queue: queue, payload: payload})
	return nil
}

func newTestHandler(db *fakeDatabase, publisher internal.EventPublisher) *SystemHandler {
	handler := NewSystemHandler(time.UTC, 60)
	handler.SetDatabase(db)
	handler.SetLogger(nopLogger{})
	if publisher != nil {
		handler.SetPublisher(publisher)
	}
	return handler
}

func TestBootNotificationUpdatesStation(t *testing.T) {
	db := newFakeDatabase()
	db.stations["ST-1"] = &models.Station{Id: "ST-1"}
	handler := newTestHandler(db, nil)

	response, err := handler.OnBootNotification("ST-1", &core.BootNotificationRequest{
		ChargePointVendor: "Vendor",
		ChargePointModel:  "ModelX",
	})
	require.NoError(t, err)
	assert.Equal(t, core.RegistrationStatusAccepted, response.Status)
	assert.Equal(t, 60, response.Interval)
	assert.Equal(t, "Vendor", db.stations["ST-1"].Vendor)
	assert.Equal(t, "ModelX", db.stations["ST-1"].Model)
}

func TestAuthorizeUnknownTagIsInvalid(t *testing.T) {
	handler := newTestHandler(newFakeDatabase(), nil)

	response, err := handler.OnAuthorize("ST-1", &core.AuthorizeRequest{IdTag: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusInvalid, response.IdTagInfo.Status)
}

func TestAuthorizeDisabledUserIsBlocked(t *testing.T) {
	db := newFakeDatabase()
	db.users["u1"] = &models.User{Email: "user@example.com", WalletBalance: 100, IsEnabled: false}
	handler := newTestHandler(db, nil)

	response, err := handler.OnAuthorize("ST-1", &core.AuthorizeRequest{IdTag: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusBlocked, response.IdTagInfo.Status)
}

func TestAuthorizeLowBalanceIsBlocked(t *testing.T) {
	db := newFakeDatabase()
	db.users["u1"] = &models.User{Email: "user@example.com", WalletBalance: 9.5, IsEnabled: true}
	handler := newTestHandler(db, nil)

	response, err := handler.OnAuthorize("ST-1", &core.AuthorizeRequest{IdTag: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusBlocked, response.IdTagInfo.Status)
}

func TestAuthorizeAcceptedWithExpiry(t *testing.T) {
	db := newFakeDatabase()
	db.users["u1"] = &models.User{Email: "user@example.com", RfidTag: "TAG42", WalletBalance: 50, IsEnabled: true}
	handler := newTestHandler(db, nil)

	response, err := handler.OnAuthorize("ST-1", &core.AuthorizeRequest{IdTag: "TAG42"})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusAccepted, response.IdTagInfo.Status)
	require.NotNil(t, response.IdTagInfo.ExpiryDate)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), response.IdTagInfo.ExpiryDate.Time, time.Minute)
}

func TestStartTransactionBindsPendingSession(t *testing.T) {
	db := newFakeDatabase()
	pending := &models.Session{
		SessionId:   "sess-1",
		StationId:   "ST-1",
		ConnectorId: 1,
		UserId:      "user@example.com",
		TimeStart:   time.Now().Add(-time.Minute),
		Status:      models.SessionStatusPending,
	}
	db.sessions = append(db.sessions, pending)
	handler := newTestHandler(db, nil)

	response, err := handler.OnStartTransaction("ST-1", &core.StartTransactionRequest{
		ConnectorId: 1,
		IdTag:       "TAG42",
		MeterStart:  100,
		Timestamp:   types.NewDateTime(time.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusAccepted, response.IdTagInfo.Status)

	require.Len(t, db.sessions, 1, "pending session must be bound, not duplicated")
	session := db.sessions[0]
	assert.Equal(t, "sess-1", session.SessionId)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, strconv.Itoa(response.TransactionId), session.TransactionId)
	assert.Equal(t, 100, session.MeterStart)
	assert.Equal(t, "user@example.com", session.UserId, "the reserving user keeps the session")
}

func TestStartTransactionCreatesAdHocSession(t *testing.T) {
	db := newFakeDatabase()
	handler := newTestHandler(db, nil)

	response, err := handler.OnStartTransaction("ST-1", &core.StartTransactionRequest{
		ConnectorId: 2,
		IdTag:       "TAG42",
		MeterStart:  50,
		Timestamp:   types.NewDateTime(time.Now()),
	})
	require.NoError(t, err)
	require.Len(t, db.sessions, 1)
	session := db.sessions[0]
	assert.NotEmpty(t, session.SessionId)
	assert.Equal(t, "TAG42", session.UserId)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, strconv.Itoa(response.TransactionId), session.TransactionId)
}

func TestStopTransactionComputesEnergyAndPublishesSettlement(t *testing.T) {
	db := newFakeDatabase()
	db.sessions = append(db.sessions, &models.Session{
		SessionId:     "sess-1",
		TransactionId: "1700000000",
		StationId:     "ST-1",
		ConnectorId:   1,
		UserId:        "user@example.com",
		MeterStart:    100,
		Status:        models.SessionStatusActive,
	})
	publisher := &capturePublisher{}
	handler := newTestHandler(db, publisher)

	_, err := handler.OnStopTransaction("ST-1", &core.StopTransactionRequest{
		TransactionId: 1700000000,
		MeterStop:     350,
		Timestamp:     types.NewDateTime(time.Now()),
	})
	require.NoError(t, err)

	session := db.sessions[0]
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, 250.0, session.TotalEnergy)
	require.NotNil(t, session.TimeStop)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, queue.CdrEvents, publisher.messages[0].queue)
	event := publisher.messages[0].payload.(models.SettlementEvent)
	assert.Equal(t, "1700000000", event.TransactionId)
	assert.Equal(t, 250.0, event.TotalEnergy)
	assert.Equal(t, "user@example.com", event.UserId)
}

func TestStopTransactionClampsNegativeEnergy(t *testing.T) {
	db := newFakeDatabase()
	db.sessions = append(db.sessions, &models.Session{
		SessionId:     "sess-1",
		TransactionId: "42",
		StationId:     "ST-1",
		MeterStart:    500,
		Status:        models.SessionStatusActive,
	})
	handler := newTestHandler(db, nil)

	_, err := handler.OnStopTransaction("ST-1", &core.StopTransactionRequest{
		TransactionId: 42,
		MeterStop:     100,
		Timestamp:     types.NewDateTime(time.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, db.sessions[0].TotalEnergy)
}

func TestStopTransactionUnknownSessionStillAccepted(t *testing.T) {
	publisher := &capturePublisher{}
	handler := newTestHandler(newFakeDatabase(), publisher)

	response, err := handler.OnStopTransaction("ST-1", &core.StopTransactionRequest{
		TransactionId: 999,
		MeterStop:     100,
		Timestamp:     types.NewDateTime(time.Now()),
	})
	require.NoError(t, err)
	require.NotNil(t, response)

	require.Len(t, publisher.messages, 1)
	event := publisher.messages[0].payload.(models.SettlementEvent)
	assert.Empty(t, event.UserId)
	assert.Equal(t, 0.0, event.TotalEnergy)
}

func TestMeterValuesUpdateEnergyAndPublishProgress(t *testing.T) {
	db := newFakeDatabase()
	db.sessions = append(db.sessions, &models.Session{
		SessionId:     "sess-1",
		TransactionId: "77",
		StationId:     "ST-1",
		UserId:        "user@example.com",
		MeterStart:    1000,
		Status:        models.SessionStatusActive,
	})
	publisher := &capturePublisher{}
	handler := newTestHandler(db, publisher)

	transactionId := 77
	_, err := handler.OnMeterValues("ST-1", &core.MeterValuesRequest{
		ConnectorId:   1,
		TransactionId: &transactionId,
		MeterValue: []types.MeterValue{{
			Timestamp: types.NewDateTime(time.Now()),
			SampledValue: []types.SampledValue{
				{Value: "1500", Measurand: types.MeasurandEnergyActiveImportRegister},
				{Value: "7.2", Measurand: types.MeasurandPowerActiveImport},
				{Value: "64", Measurand: types.MeasurandSoC},
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 500.0, db.sessions[0].TotalEnergy)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, queue.ChargingProgress, publisher.messages[0].queue)
	event := publisher.messages[0].payload.(models.ChargingProgressEvent)
	assert.Equal(t, 500.0, event.EnergyConsumed)
	assert.Equal(t, 7.2, event.Power)
	require.NotNil(t, event.Soc)
	assert.Equal(t, 64.0, *event.Soc)
}

func TestMeterValuesDefaultMeasurandIsEnergyRegister(t *testing.T) {
	db := newFakeDatabase()
	db.sessions = append(db.sessions, &models.Session{
		SessionId:     "sess-1",
		TransactionId: "78",
		StationId:     "ST-1",
		MeterStart:    100,
		Status:        models.SessionStatusActive,
	})
	handler := newTestHandler(db, nil)

	transactionId := 78
	_, err := handler.OnMeterValues("ST-1", &core.MeterValuesRequest{
		TransactionId: &transactionId,
		MeterValue: []types.MeterValue{{
			Timestamp:    types.NewDateTime(time.Now()),
			SampledValue: []types.SampledValue{{Value: "250"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, db.sessions[0].TotalEnergy)
}

func TestStatusNotificationConnectorLevel(t *testing.T) {
	db := newFakeDatabase()
	publisher := &capturePublisher{}
	handler := newTestHandler(db, publisher)

	_, err := handler.OnStatusNotification("ST-1", &core.StatusNotificationRequest{
		ConnectorId: 2,
		Status:      core.ChargePointStatusCharging,
		ErrorCode:   core.NoError,
	})
	require.NoError(t, err)
	assert.Equal(t, "Charging", db.connectorStatus[2])
	assert.Empty(t, db.stationStatus["ST-1"])

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, queue.StationStatus, publisher.messages[0].queue)
}

func TestStatusNotificationStationLevel(t *testing.T) {
	db := newFakeDatabase()
	handler := newTestHandler(db, nil)

	_, err := handler.OnStatusNotification("ST-1", &core.StatusNotificationRequest{
		ConnectorId: 0,
		Status:      core.ChargePointStatusAvailable,
		ErrorCode:   core.NoError,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StationStatusOnline, db.stationStatus["ST-1"])

	_, err = handler.OnStatusNotification("ST-1", &core.StatusNotificationRequest{
		ConnectorId: 0,
		Status:      core.ChargePointStatusFaulted,
		ErrorCode:   core.GroundFailure,
	})
	require.NoError(t, err)
	assert.Equal(t, "faulted", db.stationStatus["ST-1"])
}
