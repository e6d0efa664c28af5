package billing

import (
	"encoding/json"
	"fmt"

	"csms/internal"
	"csms/models"
)

const featureName = "Settlement"

// SettlementService turns consumption records into wallet debits and ledger
// entries. Each record settles at most once, a repeated delivery is detected
// by its ledger reference and skipped.
type SettlementService struct {
	database internal.Database
	tariffs  *TariffService
	logger   internal.LogHandler
}

func NewSettlementService(database internal.Database, tariffs *TariffService, logger internal.LogHandler) *SettlementService {
	return &SettlementService{
		database: database,
		tariffs:  tariffs,
		logger:   logger,
	}
}

// HandleRecord processes one consumption record off the queue. A returned
// error rejects the delivery; business-level misses (no user, unknown user,
// already settled) are logged and acknowledged.
func (s *SettlementService) HandleRecord(body []byte) error {
	var event models.SettlementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decoding consumption record: %s", err)
	}
	s.logger.FeatureEvent(featureName, event.StationId, fmt.Sprintf("processing record for transaction %s", event.TransactionId))

	if event.UserId == "" {
		s.logger.Warn(fmt.Sprintf("no user associated with transaction %s, skipping settlement", event.TransactionId))
		return nil
	}

	reference := models.LedgerReferencePrefix + event.TransactionId
	existing, err := s.database.GetLedgerEntry(reference)
	if err != nil {
		return fmt.Errorf("ledger lookup for %s: %s", reference, err)
	}
	if existing != nil {
		s.logger.Warn(fmt.Sprintf("transaction %s is already settled, skipping", event.TransactionId))
		return nil
	}

	// peak pricing keys off the session start, not the record timestamp
	startTime := event.Timestamp
	var session *models.Session
	if event.SessionId != "" {
		session, err = s.database.GetSession(event.SessionId)
		if err != nil {
			return fmt.Errorf("session lookup for %s: %s", event.SessionId, err)
		}
		if session != nil {
			startTime = session.TimeStart
		}
	}

	cost := s.tariffs.CalculateCost(event.TotalEnergy, startTime, event.StationId)

	user, err := s.database.GetUserByTag(event.UserId)
	if err != nil {
		return fmt.Errorf("user lookup for %s: %s", event.UserId, err)
	}
	if user == nil {
		s.logger.Warn(fmt.Sprintf("user %s not found for settlement", event.UserId))
		return nil
	}

	// the balance may go negative, debts are collected out of band
	if err = s.database.UpdateUserBalance(user.Email, user.WalletBalance-cost); err != nil {
		return fmt.Errorf("debiting user %s: %s", event.UserId, err)
	}

	referenceId := event.SessionId
	if referenceId == "" {
		referenceId = event.TransactionId
	}
	entry := &models.LedgerEntry{
		TransactionId: reference,
		UserId:        event.UserId,
		Amount:        cost,
		Type:          models.LedgerTypeDebit,
		Source:        models.LedgerSourceCharging,
		ReferenceId:   referenceId,
		Status:        models.LedgerStatusSuccess,
		Time:          event.Timestamp,
	}
	if err = s.database.AddLedgerEntry(entry); err != nil {
		return fmt.Errorf("writing ledger entry %s: %s", reference, err)
	}

	if session != nil {
		session.Cost = cost
		session.Currency = DefaultCurrency
		if err = s.database.UpdateSession(session); err != nil {
			s.logger.Error(fmt.Sprintf("updating session %s with cost", event.SessionId), err)
		}
	}

	s.logger.FeatureEvent(featureName, event.StationId, fmt.Sprintf("billed user %s %v for %v kWh", event.UserId, cost, event.TotalEnergy))
	return nil
}
