package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csms/internal"
	"csms/models"
	"csms/ocpp/v201"
	"csms/queue"
	"csms/types"
)

func newTestHandlerV201(db *fakeDatabase, publisher internal.EventPublisher) *SystemHandlerV201 {
	handler := NewSystemHandlerV201(time.UTC, 60)
	handler.SetDatabase(db)
	handler.SetLogger(nopLogger{})
	if publisher != nil {
		handler.SetPublisher(publisher)
	}
	return handler
}

func TestTransactionEventStartedCreatesSession(t *testing.T) {
	db := newFakeDatabase()
	publisher := &capturePublisher{}
	handler := newTestHandlerV201(db, publisher)

	response, err := handler.OnTransactionEvent("ST-1", &v201.TransactionEventRequest{
		EventType: v201.TransactionEventStarted,
		Timestamp: types.NewDateTime(time.Now()),
		TransactionInfo: v201.TransactionInfo{
			TransactionId: "tx-abc",
		},
		Evse:    &v201.Evse{Id: 2, ConnectorId: 1},
		IdToken: &v201.IdToken{IdToken: "TAG42", Type: "ISO14443"},
		MeterValue: []v201.MeterValue{{
			Timestamp:    types.NewDateTime(time.Now()),
			SampledValue: []v201.SampledValue{{Value: 100}},
		}},
	})
	require.NoError(t, err)
	require.NotNil(t, response.IdTokenInfo)
	assert.Equal(t, types.AuthorizationStatusAccepted, response.IdTokenInfo.Status)

	require.Len(t, db.sessions, 1)
	session := db.sessions[0]
	assert.Equal(t, "tx-abc", session.TransactionId)
	assert.Equal(t, 2, session.ConnectorId)
	assert.Equal(t, "TAG42", session.UserId)
	assert.Equal(t, 100, session.MeterStart)
	assert.Equal(t, models.SessionStatusActive, session.Status)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, queue.SessionEvents, publisher.messages[0].queue)
}

func TestTransactionEventStartedDefaults(t *testing.T) {
	db := newFakeDatabase()
	handler := newTestHandlerV201(db, nil)

	response, err := handler.OnTransactionEvent("ST-1", &v201.TransactionEventRequest{
		EventType: v201.TransactionEventStarted,
		Timestamp: types.NewDateTime(time.Now()),
		TransactionInfo: v201.TransactionInfo{
			TransactionId: "tx-abc",
		},
	})
	require.NoError(t, err)
	assert.Nil(t, response.IdTokenInfo, "no id token in the request, none in the response")

	require.Len(t, db.sessions, 1)
	session := db.sessions[0]
	assert.Equal(t, 1, session.ConnectorId)
	assert.Equal(t, "unknown", session.UserId)
	assert.Equal(t, 0, session.MeterStart)
}

func TestTransactionEventEndedSettlesSession(t *testing.T) {
	db := newFakeDatabase()
	db.sessions = append(db.sessions, &models.Session{
		SessionId:     "sess-1",
		TransactionId: "tx-abc",
		StationId:     "ST-1",
		UserId:        "TAG42",
		MeterStart:    100,
		Status:        models.SessionStatusActive,
	})
	publisher := &capturePublisher{}
	handler := newTestHandlerV201(db, publisher)

	_, err := handler.OnTransactionEvent("ST-1", &v201.TransactionEventRequest{
		EventType: v201.TransactionEventEnded,
		Timestamp: types.NewDateTime(time.Now()),
		TransactionInfo: v201.TransactionInfo{
			TransactionId: "tx-abc",
			StoppedReason: "EVDisconnected",
		},
		MeterValue: []v201.MeterValue{{
			Timestamp:    types.NewDateTime(time.Now()),
			SampledValue: []v201.SampledValue{{Value: 350}},
		}},
	})
	require.NoError(t, err)

	session := db.sessions[0]
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, 250.0, session.TotalEnergy)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, queue.CdrEvents, publisher.messages[0].queue)
	event := publisher.messages[0].payload.(models.SettlementEvent)
	assert.Equal(t, "tx-abc", event.TransactionId)
	assert.Equal(t, 250.0, event.TotalEnergy)
	assert.Equal(t, "TAG42", event.UserId)
	assert.Equal(t, "sess-1", event.SessionId)
}

func TestTransactionEventEndedUnknownSessionFallsBackToIdToken(t *testing.T) {
	publisher := &capturePublisher{}
	handler := newTestHandlerV201(newFakeDatabase(), publisher)

	_, err := handler.OnTransactionEvent("ST-1", &v201.TransactionEventRequest{
		EventType: v201.TransactionEventEnded,
		Timestamp: types.NewDateTime(time.Now()),
		TransactionInfo: v201.TransactionInfo{
			TransactionId: "tx-missing",
		},
		IdToken: &v201.IdToken{IdToken: "TAG42", Type: "ISO14443"},
	})
	require.NoError(t, err)

	require.Len(t, publisher.messages, 1)
	event := publisher.messages[0].payload.(models.SettlementEvent)
	assert.Equal(t, "TAG42", event.UserId)
	assert.Equal(t, 0.0, event.TotalEnergy)
	assert.Empty(t, event.SessionId)
}

func TestTransactionEventUpdatedIsAcknowledged(t *testing.T) {
	db := newFakeDatabase()
	handler := newTestHandlerV201(db, nil)

	response, err := handler.OnTransactionEvent("ST-1", &v201.TransactionEventRequest{
		EventType: v201.TransactionEventUpdated,
		Timestamp: types.NewDateTime(time.Now()),
		TransactionInfo: v201.TransactionInfo{
			TransactionId: "tx-abc",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Empty(t, db.sessions)
}

func TestStatusNotificationV201MapsEvseToConnector(t *testing.T) {
	db := newFakeDatabase()
	handler := newTestHandlerV201(db, nil)

	_, err := handler.OnStatusNotification("ST-1", &v201.StatusNotificationRequest{
		Timestamp:       types.NewDateTime(time.Now()),
		ConnectorStatus: v201.ConnectorStatusOccupied,
		EvseId:          2,
		ConnectorId:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Occupied", db.connectorStatus[2])
	assert.Equal(t, models.StationStatusOnline, db.stationStatus["ST-1"])
}
