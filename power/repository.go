package power

import "csms/models"

type Repository interface {
	GetStation(id string) (*models.Station, error)
	GetActiveSessions(stationId string) ([]*models.Session, error)
}
