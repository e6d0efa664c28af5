package types

const (
	SubProtocol16  = "ocpp1.6"
	SubProtocol201 = "ocpp2.0.1"
)

const (
	Version16  = "1.6"
	Version20  = "2.0"
	Version201 = "2.0.1"
)

// SupportedVersions protocol versions accepted on the websocket endpoint
var SupportedVersions = []string{Version16, Version20, Version201}

type AuthorizationStatus string

const (
	AuthorizationStatusAccepted     AuthorizationStatus = "Accepted"
	AuthorizationStatusBlocked      AuthorizationStatus = "Blocked"
	AuthorizationStatusExpired      AuthorizationStatus = "Expired"
	AuthorizationStatusInvalid      AuthorizationStatus = "Invalid"
	AuthorizationStatusConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty" validate:"omitempty"`
	ParentIdTag string              `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	Status      AuthorizationStatus `json:"status" validate:"required,authorizationStatus"`
}

func NewIdTagInfo(status AuthorizationStatus) *IdTagInfo {
	return &IdTagInfo{Status: status}
}

type ReadingContext string
type ValueFormat string
type Measurand string
type Phase string
type Location string
type UnitOfMeasure string

const (
	ReadingContextSampleClock           ReadingContext = "Sample.Clock"
	ReadingContextSamplePeriodic        ReadingContext = "Sample.Periodic"
	ReadingContextTransactionBegin      ReadingContext = "Transaction.Begin"
	ReadingContextTransactionEnd        ReadingContext = "Transaction.End"
	ValueFormatRaw                      ValueFormat    = "Raw"
	MeasurandCurrentImport              Measurand      = "Current.Import"
	MeasurandEnergyActiveImportRegister Measurand      = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          Measurand      = "Power.Active.Import"
	MeasurandSoC                        Measurand      = "SoC"
	MeasurandVoltage                    Measurand      = "Voltage"
	UnitOfMeasureWh                     UnitOfMeasure  = "Wh"
	UnitOfMeasureKWh                    UnitOfMeasure  = "kWh"
	UnitOfMeasureW                      UnitOfMeasure  = "W"
	UnitOfMeasureKW                     UnitOfMeasure  = "kW"
	UnitOfMeasureA                      UnitOfMeasure  = "A"
	UnitOfMeasureV                      UnitOfMeasure  = "V"
	UnitOfMeasurePercent                UnitOfMeasure  = "Percent"
)

type SampledValue struct {
	Value     string         `json:"value" validate:"required"`
	Context   ReadingContext `json:"context,omitempty" validate:"omitempty,readingContext"`
	Format    ValueFormat    `json:"format,omitempty" validate:"omitempty,valueFormat"`
	Measurand Measurand      `json:"measurand,omitempty" validate:"omitempty,measurand"`
	Phase     Phase          `json:"phase,omitempty" validate:"omitempty,phase"`
	Location  Location       `json:"location,omitempty" validate:"omitempty,location"`
	Unit      UnitOfMeasure  `json:"unit,omitempty" validate:"omitempty,unitOfMeasure"`
}

type MeterValue struct {
	Timestamp    *DateTime      `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

type RemoteStartStopStatus string

const (
	RemoteStartStopStatusAccepted RemoteStartStopStatus = "Accepted"
	RemoteStartStopStatusRejected RemoteStartStopStatus = "Rejected"
)

// Charging Profiles
type ChargingProfilePurposeType string
type ChargingProfileKindType string
type ChargingRateUnitType string

const (
	ChargingProfilePurposeTxProfile ChargingProfilePurposeType = "TxProfile"
	ChargingProfileKindAbsolute     ChargingProfileKindType    = "Absolute"
	ChargingProfileKindRelative     ChargingProfileKindType    = "Relative"
	ChargingRateUnitWatts           ChargingRateUnitType       = "W"
	ChargingRateUnitAmperes         ChargingRateUnitType       = "A"
)

type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod" validate:"gte=0"`
	Limit        float64 `json:"limit" validate:"gte=0"`
	NumberPhases *int    `json:"numberPhases,omitempty" validate:"omitempty,gte=0"`
}

type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty" validate:"omitempty,gte=0"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnitType     `json:"chargingRateUnit" validate:"required,chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty" validate:"omitempty,gte=0"`
}

type ChargingProfile struct {
	ChargingProfileId      int                        `json:"chargingProfileId"`
	TransactionId          int                        `json:"transactionId,omitempty"`
	StackLevel             int                        `json:"stackLevel" validate:"gte=0"`
	ChargingProfilePurpose ChargingProfilePurposeType `json:"chargingProfilePurpose" validate:"required,chargingProfilePurpose"`
	ChargingProfileKind    ChargingProfileKindType    `json:"chargingProfileKind" validate:"required,chargingProfileKind"`
	ValidFrom              *DateTime                  `json:"validFrom,omitempty"`
	ValidTo                *DateTime                  `json:"validTo,omitempty"`
	ChargingSchedule       *ChargingSchedule          `json:"chargingSchedule" validate:"required"`
}
