package v201

import "csms/types"

const BootNotificationFeatureName = "BootNotification"

type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

type ChargingStation struct {
	Model           string `json:"model" validate:"required,max=20"`
	VendorName      string `json:"vendorName" validate:"required,max=50"`
	SerialNumber    string `json:"serialNumber,omitempty" validate:"max=25"`
	FirmwareVersion string `json:"firmwareVersion,omitempty" validate:"max=50"`
}

type BootNotificationRequest struct {
	Reason          string          `json:"reason" validate:"required"`
	ChargingStation ChargingStation `json:"chargingStation" validate:"required"`
}

type BootNotificationResponse struct {
	CurrentTime *types.DateTime    `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval"`
	Status      RegistrationStatus `json:"status" validate:"required"`
}

func (r BootNotificationRequest) GetFeatureName() string {
	return BootNotificationFeatureName
}

func (c BootNotificationResponse) GetFeatureName() string {
	return BootNotificationFeatureName
}

func NewBootNotificationResponse(currentTime *types.DateTime, interval int, status RegistrationStatus) *BootNotificationResponse {
	return &BootNotificationResponse{CurrentTime: currentTime, Interval: interval, Status: status}
}
