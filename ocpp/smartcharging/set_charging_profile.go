package smartcharging

import "csms/types"

const SetChargingProfileFeatureName = "SetChargingProfile"

type SetChargingProfileRequest struct {
	ConnectorId     int                    `json:"connectorId" validate:"gte=0"`
	ChargingProfile *types.ChargingProfile `json:"csChargingProfiles" validate:"required"`
}

type SetChargingProfileResponse struct {
	Status string `json:"status"`
}

func (r SetChargingProfileRequest) GetFeatureName() string {
	return SetChargingProfileFeatureName
}

func (c SetChargingProfileResponse) GetFeatureName() string {
	return SetChargingProfileFeatureName
}

func NewSetChargingProfileRequest(connectorId int, chargingProfile *types.ChargingProfile) *SetChargingProfileRequest {
	return &SetChargingProfileRequest{ConnectorId: connectorId, ChargingProfile: chargingProfile}
}

// NewTransactionChargingProfile builds a transaction-scoped profile limiting
// the running transaction to the given current in amperes, three phases.
func NewTransactionChargingProfile(transactionId, limitAmperes int) *types.ChargingProfile {
	phases := 3
	period := types.ChargingSchedulePeriod{
		StartPeriod:  0,
		Limit:        float64(limitAmperes),
		NumberPhases: &phases,
	}
	return &types.ChargingProfile{
		ChargingProfileId:      1,
		StackLevel:             1,
		TransactionId:          transactionId,
		ChargingProfilePurpose: types.ChargingProfilePurposeTxProfile,
		ChargingProfileKind:    types.ChargingProfileKindAbsolute,
		ChargingSchedule: &types.ChargingSchedule{
			ChargingRateUnit: types.ChargingRateUnitAmperes,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				period,
			},
		},
	}
}
