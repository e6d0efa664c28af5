package power

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csms/models"
	"csms/ocpp"
	"csms/ocpp/smartcharging"
)

type fakeRepository struct {
	station  *models.Station
	sessions []*models.Session
}

func (f *fakeRepository) GetStation(string) (*models.Station, error) {
	return f.station, nil
}

func (f *fakeRepository) GetActiveSessions(string) ([]*models.Session, error) {
	return f.sessions, nil
}

type sentRequest struct {
	stationId string
	request   ocpp.Request
}

type fakeSender struct {
	sent []sentRequest
}

func (f *fakeSender) SendRequest(stationId string, request ocpp.Request) (string, error) {
	f.sent = append(f.sent, sentRequest{stationId: stationId, request: request})
	return "req-1", nil
}

type nopLogger struct{}

func (nopLogger) FeatureEvent(string, string, string) {}
func (nopLogger) Debug(string)                        {}
func (nopLogger) Warn(string)                         {}
func (nopLogger) Error(string, error)                 {}
func (nopLogger) RawDataEvent(string, string)         {}

func TestSharePerConnector(t *testing.T) {
	tests := []struct {
		maxPowerKw float64
		connectors int
		want       float64
	}{
		{22, 1, 22.0},
		{22, 2, 11.0},
		{22, 3, 7.3},
		{10, 3, 3.3},
		{22, 0, 22.0},
	}
	for _, tt := range tests {
		got := SharePerConnector(tt.maxPowerKw, tt.connectors)
		if got != tt.want {
			t.Fatalf("SharePerConnector(%v, %d) = %v, want %v", tt.maxPowerKw, tt.connectors, got, tt.want)
		}
	}
}

func TestCurrentLimit(t *testing.T) {
	tests := []struct {
		powerKw float64
		want    int
	}{
		{22.0, 31},
		{11.0, 15},
		{7.3, 10},
		{3.3, 4},
	}
	for _, tt := range tests {
		got := CurrentLimit(tt.powerKw)
		if got != tt.want {
			t.Fatalf("CurrentLimit(%v) = %d, want %d", tt.powerKw, got, tt.want)
		}
	}
}

func TestApplyLoadBalancingSplitsAcrossConnectors(t *testing.T) {
	repository := &fakeRepository{
		station: &models.Station{Id: "ST-1", MaxPowerKw: 22},
		sessions: []*models.Session{
			{StationId: "ST-1", ConnectorId: 1, TransactionId: "1001", Status: models.SessionStatusActive},
		},
	}
	sender := &fakeSender{}
	balancer := NewLoadBalancer(repository, sender, nopLogger{})

	// connector 2 just started and is not stored as active yet
	balancer.ApplyLoadBalancing("ST-1", 2)

	require.Len(t, sender.sent, 2)
	connectors := make(map[int]float64)
	for _, sent := range sender.sent {
		assert.Equal(t, "ST-1", sent.stationId)
		request, ok := sent.request.(*smartcharging.SetChargingProfileRequest)
		require.True(t, ok)
		limit := request.ChargingProfile.ChargingSchedule.ChargingSchedulePeriod[0].Limit
		connectors[request.ConnectorId] = limit
	}
	// 11 kW each, 15A at 400V three-phase
	assert.Equal(t, 15.0, connectors[1])
	assert.Equal(t, 15.0, connectors[2])
}

func TestApplyLoadBalancingDefaultsStationPower(t *testing.T) {
	repository := &fakeRepository{station: &models.Station{Id: "ST-1"}}
	sender := &fakeSender{}
	balancer := NewLoadBalancer(repository, sender, nopLogger{})

	balancer.ApplyLoadBalancing("ST-1", 1)

	require.Len(t, sender.sent, 1)
	request := sender.sent[0].request.(*smartcharging.SetChargingProfileRequest)
	// 22 kW default for one connector, 31A
	assert.Equal(t, 31.0, request.ChargingProfile.ChargingSchedule.ChargingSchedulePeriod[0].Limit)
}

func TestApplyLoadBalancingUnknownStationSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	balancer := NewLoadBalancer(&fakeRepository{}, sender, nopLogger{})

	balancer.ApplyLoadBalancing("ST-1", 1)
	assert.Empty(t, sender.sent)
}
