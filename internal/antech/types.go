// Package antech implements the Antech V6 Lab API surface: wire types, the
// authenticated HTTP client layer and the typed adapter for every endpoint
// the integration uses.
package antech

// Endpoints, relative to the per-integration base URL.
const (
	EndpointLogin             = "/Users/v6/Login"
	EndpointGetStatus         = "/LabResults/v6/GetStatus"
	EndpointGetAllResults     = "/LabResults/v6/GetAllResults"
	EndpointGetOrphanResults  = "/LabResults/v6/OrphanResults"
	EndpointGetSpeciesBreeds  = "/Master/v6/GetSpeciesBreed"
	EndpointGetTestGuide      = "/Tests/v6"
	EndpointGetOrderTrf       = "/HTPDF/trf/pims"
	EndpointPlacePreOrder     = "/LabOrders/v6/PreOrderPlacement"
	EndpointPlaceOrder        = "/LabOrders/v6/OrderPlacement"
	EndpointAcknowledgeStatus = "/LabResults/v6/AckStatus"
)

// UserCredentials authenticate one clinic integration against the Lab.
type UserCredentials struct {
	UserName string `json:"UserName"`
	Password string `json:"Password"`
	ClinicID string `json:"ClinicID"`
}

// AccessToken is the login response. UserInfo is only needed by the test
// guide endpoint, which takes the user id as a query parameter.
type AccessToken struct {
	Token    string `json:"Token"`
	UserInfo *struct {
		ID int64 `json:"ID"`
	} `json:"UserInfo,omitempty"`
}

// OrderStatus is the Lab order status. The Lab serializes it as a 0-indexed
// ordinal, unlike every other enumeration on the wire.
type OrderStatus int

const (
	OrderDraft OrderStatus = iota
	OrderExpired
	OrderCanceled
	OrderSubmitted
	OrderReceived
	OrderResulted
	OrderPartial
	OrderFinal
)

var orderStatusNames = [...]string{"Draft", "Expired", "Canceled", "Submitted", "Received", "Resulted", "Partial", "Final"}

func (s OrderStatus) String() string {
	if s < 0 || int(s) >= len(orderStatusNames) {
		return "Unknown"
	}
	return orderStatusNames[s]
}

// PetSex is the Lab patient sex code.
type PetSex string

const (
	PetSexMale          PetSex = "M"
	PetSexFemale        PetSex = "F"
	PetSexMaleCastrated PetSex = "CM"
	PetSexFemaleSpayed  PetSex = "SF"
	PetSexUnknown       PetSex = "U"
)

// PetAgeUnits is the unit a pet age is expressed in.
type PetAgeUnits string

const (
	AgeYears  PetAgeUnits = "Y"
	AgeMonths PetAgeUnits = "M"
	AgeWeeks  PetAgeUnits = "W"
	AgeDays   PetAgeUnits = "D"
)

// ResultStatusCode is the per-unit-code result progress flag.
type ResultStatusCode string

const (
	ResultInProgress       ResultStatusCode = "I"
	ResultPartial          ResultStatusCode = "P"
	ResultFinal            ResultStatusCode = "F"
	ResultUpdatedCorrected ResultStatusCode = "C"
)

// AbnormalFlag qualifies a test code result value.
type AbnormalFlag string

const (
	FlagHigh     AbnormalFlag = "H"
	FlagLow      AbnormalFlag = "L"
	FlagAbnormal AbnormalFlag = "*"
	FlagPositive AbnormalFlag = "P"
)

// PersonDetails is the Lab shape for clients and doctors embedded in status
// rows and results.
type PersonDetails struct {
	ID        string `json:"Id"`
	FirstName string `json:"FirstName,omitempty"`
	LastName  string `json:"LastName,omitempty"`
	Name      string `json:"Name,omitempty"` // sometimes "Last, First"
}

// PetDetails is the Lab shape for the patient embedded in status rows.
type PetDetails struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// PreOrder is the order draft posted to the Lab.
type PreOrder struct {
	LabID             int         `json:"LabID,omitempty"`
	ClinicID          string      `json:"ClinicID"`
	ClinicAccessionID string      `json:"ClinicAccessionID"`
	ClientID          string      `json:"ClientID"`
	ClientFirstName   string      `json:"ClientFirstName"`
	ClientLastName    string      `json:"ClientLastName"`
	DoctorID          string      `json:"DoctorID"`
	DoctorFirstName   string      `json:"DoctorFirstName"`
	DoctorLastName    string      `json:"DoctorLastName"`
	PetID             string      `json:"PetID"`
	PetName           string      `json:"PetName"`
	PetSex            PetSex      `json:"PetSex"`
	PetAge            int         `json:"PetAge"`
	PetAgeUnits       PetAgeUnits `json:"PetAgeUnits"`
	PetWeight         float64     `json:"PetWeight,omitempty"`
	PetWeightUnits    string      `json:"PetWeightUnits,omitempty"`
	SpeciesID         int         `json:"SpeciesID"`
	BreedID           int         `json:"BreedID"`
	OrderCodes        []string    `json:"OrderCodes,omitempty"`
}

// PreOrderPlacement is the PreOrderPlacement response, merged with the token
// used to place it so the submission URI can be built.
type PreOrderPlacement struct {
	Value string `json:"Value"`
	Token string `json:"Token,omitempty"`
}

// LabTest is one test on a lab order.
type LabTest struct {
	CodeType    string  `json:"CodeType,omitempty"`
	CodeID      int     `json:"CodeID,omitempty"`
	Mnemonic    string  `json:"Mnemonic"`
	DisplayName string  `json:"DisplayName,omitempty"`
	Price       float64 `json:"Price,omitempty"`
}

// AddOnTest is a test added to an order after submission.
type AddOnTest struct {
	AddOnCodeID    string  `json:"AddOnCodeID,omitempty"`
	AddOnOrderCode string  `json:"AddOnOrderCode,omitempty"`
	AddOnCodeName  string  `json:"AddOnCodeName,omitempty"`
	AddOnDate      string  `json:"AddOnDate,omitempty"`
	Price          float64 `json:"Price,omitempty"`
}

// LabOrderStatus is one row of the labOrder GetStatus response.
type LabOrderStatus struct {
	ClinicAccessionID string      `json:"ClinicAccessionID"`
	OrderDate         string      `json:"OrderDate,omitempty"`
	CreatedDate       string      `json:"CreatedDate,omitempty"`
	OrderStatus       OrderStatus `json:"OrderStatus"`
	LabAccessionID    string      `json:"LabAccessionID,omitempty"`
	LabTests          []LabTest   `json:"LabTests"`
	AddOnTests        []AddOnTest `json:"AddOnTests,omitempty"`
}

// LabResultStatus is one row of the labResult GetStatus response.
type LabResultStatus struct {
	ClinicAccessionID        string        `json:"ClinicAccessionID"`
	LabAccessionID           string        `json:"LabAccessionID,omitempty"`
	LatestResultReceivedDate string        `json:"LatestResultReceivedDate,omitempty"`
	Pet                      PetDetails    `json:"Pet"`
	SpeciesID                int           `json:"SpeciesID,omitempty"`
	BreedID                  int           `json:"BreedID,omitempty"`
	Client                   PersonDetails `json:"Client"`
	Doctor                   PersonDetails `json:"Doctor"`
	OrderDate                string        `json:"OrderDate,omitempty"`
	CreatedDate              string        `json:"CreatedDate,omitempty"`
	CodeID                   int           `json:"CodeID,omitempty"`
	Mnemonic                 string        `json:"Mnemonic,omitempty"`
	DisplayName              string        `json:"DisplayName,omitempty"`
	CodeType                 string        `json:"CodeType,omitempty"`
	LabTests                 []LabTest     `json:"LabTests,omitempty"`
}

// OrderStatusResponse wraps labOrder GetStatus.
type OrderStatusResponse struct {
	LabOrders  []LabOrderStatus  `json:"LabOrders"`
	LabResults []LabResultStatus `json:"LabResults,omitempty"`
}

// ResultStatusResponse wraps labResult GetStatus.
type ResultStatusResponse struct {
	LabResults []LabResultStatus `json:"LabResults"`
	LabOrders  []LabOrderStatus  `json:"LabOrders,omitempty"`
}

// ResultStatusQuery narrows a labResult GetStatus request.
type ResultStatusQuery struct {
	ClinicAccessionID string
}

// TestCodeResult is a single observation inside a unit code result.
type TestCodeResult struct {
	TestCodeExtID string       `json:"TestCodeExtID"`
	Test          string       `json:"Test"`
	TestCodeID    string       `json:"TestCodeID,omitempty"`
	AbnormalFlag  AbnormalFlag `json:"AbnormalFlag,omitempty"`
	ResultStatus  string       `json:"ResultStatus,omitempty"`
	Result        string       `json:"Result"`
	Range         string       `json:"Range,omitempty"`
	Unit          string       `json:"Unit,omitempty"`
	Comments      string       `json:"Comments,omitempty"`
	Min           string       `json:"Min,omitempty"`
	Max           string       `json:"Max,omitempty"`
}

// UnitCodeResult groups observations for one unit code within a result.
type UnitCodeResult struct {
	UnitCodeResultID    string           `json:"UnitCodeResultID,omitempty"`
	UnitCodeID          int              `json:"UnitCodeID,omitempty"`
	ProfileExtID        string           `json:"ProfileExtID,omitempty"`
	UnitCodeExtID       string           `json:"UnitCodeExtID"`
	ResultStatus        ResultStatusCode `json:"ResultStatus,omitempty"`
	OrderCode           string           `json:"OrderCode"`
	Comments            string           `json:"Comments,omitempty"`
	UnitCodeDisplayName string           `json:"UnitCodeDisplayName"`
	ProfileDisplayName  string           `json:"ProfileDisplayName,omitempty"`
	TestCodeResults     []TestCodeResult `json:"TestCodeResults"`
	Category            string           `json:"Category,omitempty"`
}

// Result is one finished or in-progress accession from GetAllResults.
type Result struct {
	ID                int64            `json:"ID"`
	LabAccessionID    string           `json:"LabAccessionID"`
	ClinicAccessionID string           `json:"ClinicAccessionID"`
	ReportedDateTime  string           `json:"ReportedDateTime,omitempty"`
	OrderStatus       OrderStatus      `json:"OrderStatus"`
	Corrected         string           `json:"Corrected,omitempty"`
	PendingTestCount  int              `json:"PendingTestCount,omitempty"`
	TotalTestCount    int              `json:"TotalTestCount,omitempty"`
	UnitCodeResults   []UnitCodeResult `json:"UnitCodeResults"`
	Doctor            PersonDetails    `json:"Doctor"`
	Pet               PetDetails       `json:"Pet"`
	Client            PersonDetails    `json:"Client"`
}

// SpeciesBreed is one breed under a species in the species-breed master.
type SpeciesBreed struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	BreedExtID   string `json:"breedExtId,omitempty"`
	SpeciesExtID string `json:"speciesExtId,omitempty"`
}

// SpeciesEntry is one species with its breeds.
type SpeciesEntry struct {
	ID    int            `json:"id"`
	Name  string         `json:"name"`
	Breed []SpeciesBreed `json:"breed"`
}

// SpeciesAndBreeds wraps the species-breed master response.
type SpeciesAndBreeds struct {
	Value struct {
		Data    []SpeciesEntry `json:"data"`
		Message string         `json:"message,omitempty"`
	} `json:"value"`
}

// Test is a test guide entry.
type Test struct {
	CodeID                  string  `json:"CodeID"`
	ExtensionID             string  `json:"ExtensionID,omitempty"`
	Description             string  `json:"Description,omitempty"`
	MnemonicType            string  `json:"MnemonicType,omitempty"`
	Alias                   string  `json:"Alias,omitempty"`
	Category                string  `json:"Category,omitempty"`
	ClientFacingDescription string  `json:"ClientFacingDescription,omitempty"`
	Code                    string  `json:"Code"`
	ReportingTitle          string  `json:"ReportingTitle"`
	Schedule                string  `json:"Schedule,omitempty"`
	LabID                   int     `json:"LabID,omitempty"`
	Price                   float64 `json:"Price,omitempty"`
	ClinicID                string  `json:"ClinicID,omitempty"`
	Specimen                string  `json:"Specimen,omitempty"`
	Status                  string  `json:"Status,omitempty"`
}

// TestGuide wraps the test guide response.
type TestGuide struct {
	TotalCount int    `json:"TotalCount"`
	LabResults []Test `json:"LabResults"`
}

// TRF is a fetched Test Requisition Form.
type TRF struct {
	ContentType string `json:"contentType"`
	Data        string `json:"data"` // base64
	URI         string `json:"uri"`
}
