package billing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"csms/internal"
	"csms/models"
)

// DefaultRatePerKwh is charged when a station has no tariff assigned.
const DefaultRatePerKwh = 15.0

const DefaultCurrency = "INR"

type TariffService struct {
	database internal.Database
	logger   internal.LogHandler
}

func NewTariffService(database internal.Database, logger internal.LogHandler) *TariffService {
	return &TariffService{
		database: database,
		logger:   logger,
	}
}

// CalculateCost prices a session by the tariff of its station. A missing
// station or tariff falls back to the flat default rate.
func (t *TariffService) CalculateCost(energyKwh float64, startTime time.Time, stationId string) float64 {
	station, err := t.database.GetStation(stationId)
	if err != nil {
		t.logger.Error(fmt.Sprintf("station lookup for %s", stationId), err)
		return roundCost(energyKwh * DefaultRatePerKwh)
	}

	var tariff *models.Tariff
	if station != nil && station.TariffId != "" {
		tariff, err = t.database.GetTariff(station.TariffId)
		if err != nil {
			t.logger.Error(fmt.Sprintf("tariff lookup for %s", station.TariffId), err)
		}
	}
	if tariff == nil {
		t.logger.Debug(fmt.Sprintf("no tariff found for %s, using default %v per kWh", stationId, DefaultRatePerKwh))
		return roundCost(energyKwh * DefaultRatePerKwh)
	}

	return Cost(tariff, energyKwh, startTime)
}

// Cost applies the tariff to the given consumption. Time-of-use pricing keys
// off the session start alone, a session spanning a peak boundary is charged
// at its starting rate.
func Cost(tariff *models.Tariff, energyKwh float64, startTime time.Time) float64 {
	cost := 0.0
	switch tariff.Type {
	case models.TariffTypeFlat:
		cost = energyKwh * tariff.PricePerKwh
	case models.TariffTypeTimeOfUse:
		rate := tariff.PricePerKwh
		if isPeakTime(startTime, tariff.PeakHours) {
			multiplier := tariff.PeakMultiplier
			if multiplier == 0 {
				multiplier = 1
			}
			rate = tariff.PricePerKwh * multiplier
		}
		cost = energyKwh * rate
	}
	return roundCost(cost)
}

// isPeakTime checks whether the minute of day falls inside any window,
// start inclusive and end exclusive.
func isPeakTime(t time.Time, windows []models.PeakWindow) bool {
	minuteOfDay := t.Hour()*60 + t.Minute()
	for _, window := range windows {
		start, okStart := parseMinuteOfDay(window.StartTime)
		end, okEnd := parseMinuteOfDay(window.EndTime)
		if !okStart || !okEnd {
			continue
		}
		if minuteOfDay >= start && minuteOfDay < end {
			return true
		}
	}
	return false
}

func parseMinuteOfDay(value string) (int, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return hours*60 + minutes, true
}

func roundCost(cost float64) float64 {
	return math.Round(cost*100) / 100
}
