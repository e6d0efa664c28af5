package internal

import "csms/models"

type Database interface {
	WriteLogMessage(data Data) error

	GetStation(id string) (*models.Station, error)
	UpdateStation(station *models.Station) error
	UpdateStationStatus(id, status string) error
	UpdateStationAddress(id, address string) error
	UpdateConnectorStatus(stationId string, connectorId int, status string) error

	GetUserByTag(idTag string) (*models.User, error)
	UpdateUserBalance(email string, balance float64) error

	AddSession(session *models.Session) error
	UpdateSession(session *models.Session) error
	GetSession(sessionId string) (*models.Session, error)
	GetSessionByTransaction(transactionId string) (*models.Session, error)
	FindPendingSession(stationId string, connectorId int) (*models.Session, error)
	GetActiveSessions(stationId string) ([]*models.Session, error)

	GetTariff(id string) (*models.Tariff, error)

	AddLedgerEntry(entry *models.LedgerEntry) error
	GetLedgerEntry(transactionId string) (*models.LedgerEntry, error)

	GetSubscriptions() ([]models.UserSubscription, error)
	AddSubscription(subscription *models.UserSubscription) error
	DeleteSubscription(subscription *models.UserSubscription) error
}

type Data interface {
	DataType() string
}
