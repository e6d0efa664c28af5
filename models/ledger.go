package models

import "time"

// LedgerEntry one debit per settled charging session, keyed by the
// transaction-derived reference to keep repeated deliveries from billing twice.
type LedgerEntry struct {
	TransactionId string    `json:"transaction_id" bson:"transaction_id"`
	UserId        string    `json:"user_id" bson:"user_id"`
	Amount        float64   `json:"amount" bson:"amount"`
	Type          string    `json:"type" bson:"type"`
	Source        string    `json:"source" bson:"source"`
	ReferenceId   string    `json:"reference_id,omitempty" bson:"reference_id,omitempty"`
	Status        string    `json:"status" bson:"status"`
	Time          time.Time `json:"created_at" bson:"created_at"`
}

const (
	LedgerTypeDebit       = "debit"
	LedgerTypeCredit      = "credit"
	LedgerSourceCharging  = "charging_session"
	LedgerStatusSuccess   = "success"
	LedgerReferencePrefix = "bill_"
)
