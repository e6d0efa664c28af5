package power

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"csms/internal"
	"csms/ocpp/smartcharging"
)

const featureName = "LoadBalancer"

// defaultStationPowerKw is assumed when a station record has no limit set.
const defaultStationPowerKw = 22.0

type LoadBalancer struct {
	database Repository
	server   Handler
	log      internal.LogHandler
	mutex    sync.Mutex
}

func NewLoadBalancer(database Repository, server Handler, log internal.LogHandler) *LoadBalancer {
	return &LoadBalancer{
		database: database,
		server:   server,
		log:      log,
	}
}

// SharePerConnector splits the station limit evenly, rounded down to one
// decimal so the sum never exceeds the limit.
func SharePerConnector(maxPowerKw float64, activeConnectors int) float64 {
	if activeConnectors < 1 {
		activeConnectors = 1
	}
	return math.Floor(maxPowerKw/float64(activeConnectors)*10) / 10
}

// CurrentLimit converts a power share to whole amperes assuming a
// three-phase 400V supply.
func CurrentLimit(powerKw float64) int {
	return int(math.Floor(powerKw * 1000 / (400 * math.Sqrt(3))))
}

// ApplyLoadBalancing recalculates the fair share across every connector with
// an active session, including the one just starting, and pushes a charging
// profile to each. Errors never propagate to the caller, the transaction goes
// ahead either way.
func (lb *LoadBalancer) ApplyLoadBalancing(stationId string, connectorId int) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	station, err := lb.database.GetStation(stationId)
	if err != nil {
		lb.log.FeatureEvent(featureName, stationId, fmt.Sprintf("error getting station: %s", err))
		return
	}
	if station == nil {
		lb.log.FeatureEvent(featureName, stationId, "station not found in database")
		return
	}
	maxPower := station.MaxPowerKw
	if maxPower == 0 {
		maxPower = defaultStationPowerKw
	}

	sessions, err := lb.database.GetActiveSessions(stationId)
	if err != nil {
		lb.log.FeatureEvent(featureName, stationId, fmt.Sprintf("error getting active sessions: %s", err))
		return
	}

	// the starting connector may not be stored as active yet
	transactions := map[int]int{connectorId: 0}
	for _, session := range sessions {
		transactionId, _ := strconv.Atoi(session.TransactionId)
		transactions[session.ConnectorId] = transactionId
	}

	allocated := SharePerConnector(maxPower, len(transactions))
	amps := CurrentLimit(allocated)
	lb.log.FeatureEvent(featureName, stationId, fmt.Sprintf("active: %d; max: %vkW; allocated: %vkW (%dA)", len(transactions), maxPower, allocated, amps))

	for id, transactionId := range transactions {
		request := smartcharging.NewSetChargingProfileRequest(
			id, smartcharging.NewTransactionChargingProfile(transactionId, amps))
		if _, err = lb.server.SendRequest(stationId, request); err != nil {
			lb.log.FeatureEvent(featureName, stationId, fmt.Sprintf("error sending profile to connector %d: %s", id, err))
		}
	}
}
