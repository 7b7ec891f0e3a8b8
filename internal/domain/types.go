// Package domain defines the PIMS-neutral schema exchanged over the message
// bus, together with the provider error taxonomy. Types here are independent
// of the Antech V6 wire format; the mapper translates between the two.
package domain

import "encoding/json"

// OrderStatus is the neutral order lifecycle status.
type OrderStatus string

const (
	OrderStatusAccepted        OrderStatus = "ACCEPTED"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusPartial         OrderStatus = "PARTIAL"
	OrderStatusCompleted       OrderStatus = "COMPLETED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusWaitingForInput OrderStatus = "WAITING_FOR_INPUT"
)

// ResultStatus is the neutral result lifecycle status.
type ResultStatus string

const (
	ResultStatusPending   ResultStatus = "PENDING"
	ResultStatusPartial   ResultStatus = "PARTIAL"
	ResultStatusCompleted ResultStatus = "COMPLETED"
	ResultStatusRevised   ResultStatus = "REVISED"
)

// InterpretationCode classifies an abnormal-flag interpretation.
type InterpretationCode string

const (
	InterpretationNormal   InterpretationCode = "NORMAL"
	InterpretationHigh     InterpretationCode = "HIGH"
	InterpretationLow      InterpretationCode = "LOW"
	InterpretationPositive InterpretationCode = "POSITIVE"
	InterpretationAbnormal InterpretationCode = "ABNORMAL"
)

// Well-known identifier systems carried on patients, clients and veterinarians.
const (
	PatientIDSystem      = "pims:patient:id"
	ClientIDSystem       = "pims:client:id"
	VeterinarianIDSystem = "pims:veterinarian:id"
)

// Identifier is a namespaced external identifier.
type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// Patient describes the animal an order or result refers to.
type Patient struct {
	ID         string       `json:"id,omitempty"`
	Name       string       `json:"name"`
	Sex        string       `json:"sex,omitempty"`
	Species    string       `json:"species,omitempty"`
	Breed      string       `json:"breed,omitempty"`
	Birthdate  string       `json:"birthdate,omitempty"` // YYYY-MM-DD
	Identifier []Identifier `json:"identifier,omitempty"`

	WeightMeasurement float64 `json:"weightMeasurement,omitempty"`
	WeightUnits       string  `json:"weightUnits,omitempty"`
}

// Client is the pet owner.
type Client struct {
	ID         string       `json:"id,omitempty"`
	FirstName  string       `json:"firstName"`
	LastName   string       `json:"lastName"`
	Identifier []Identifier `json:"identifier,omitempty"`
}

// Veterinarian is the ordering doctor.
type Veterinarian struct {
	ID         string       `json:"id,omitempty"`
	FirstName  string       `json:"firstName"`
	LastName   string       `json:"lastName"`
	Identifier []Identifier `json:"identifier,omitempty"`
}

// OrderTest names a single ordered test by its provider code.
type OrderTest struct {
	Code string `json:"code"`
}

// Manifest is a printable requisition form attached to an order.
type Manifest struct {
	ContentType string `json:"contentType"`
	Data        string `json:"data"` // base64
	URI         string `json:"uri,omitempty"`
}

// Order is the neutral projection of a Lab order.
type Order struct {
	ExternalID   string        `json:"externalId"`
	Status       OrderStatus   `json:"status"`
	Tests        []OrderTest   `json:"tests"`
	Editable     bool          `json:"editable"`
	Patient      *Patient      `json:"patient,omitempty"`
	Client       *Client       `json:"client,omitempty"`
	Veterinarian *Veterinarian `json:"veterinarian,omitempty"`
	Manifest     *Manifest     `json:"manifest,omitempty"`
}

// ValueQuantity is a numeric observation value.
type ValueQuantity struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

// Interpretation qualifies an observation value.
type Interpretation struct {
	Code InterpretationCode `json:"code"`
	Text string             `json:"text"`
}

// ReferenceRange describes the normal range for an observation.
type ReferenceRange struct {
	Type string   `json:"type"`
	Text string   `json:"text"`
	Low  *float64 `json:"low,omitempty"`
	High *float64 `json:"high,omitempty"`
}

// ReferenceRangeNormal is the only range type the Lab reports.
const ReferenceRangeNormal = "NORMAL"

// TestResultItemDone is the terminal item status; the Lab does not report
// per-item progress.
const TestResultItemDone = "DONE"

// TestResultItem is a single observation within a test result.
type TestResultItem struct {
	Seq            int              `json:"seq"`
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	Status         string           `json:"status"`
	ValueQuantity  *ValueQuantity   `json:"valueQuantity,omitempty"`
	ValueString    *string          `json:"valueString,omitempty"`
	Interpretation *Interpretation  `json:"interpretation,omitempty"`
	ReferenceRange []ReferenceRange `json:"referenceRange,omitempty"`
	Notes          string           `json:"notes,omitempty"`
}

// TestResult groups observations for one ordered test or profile.
type TestResult struct {
	Seq   int              `json:"seq"`
	Code  string           `json:"code"`
	Name  string           `json:"name"`
	Items []TestResultItem `json:"items"`
}

// Result is the neutral projection of a Lab result. Order is populated only
// for orphan results, reconstructed from the result payload itself.
type Result struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"orderId"`
	Accession   string       `json:"accession"`
	Status      ResultStatus `json:"status"`
	TestResults []TestResult `json:"testResults"`
	Order       *Order       `json:"order,omitempty"`
}

// BatchResults wraps a polled batch of results.
type BatchResults struct {
	Results []Result `json:"results"`
}

// OrderCreated is the response to an order-creation command.
type OrderCreated struct {
	RequisitionID string      `json:"requisitionId"`
	ExternalID    string      `json:"externalId"`
	Status        OrderStatus `json:"status"`
	SubmissionURI string      `json:"submissionUri,omitempty"`
}

// TestAuthResult reports the outcome of a credentials check.
type TestAuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Sex is a reference-data entry for patient sexes.
type Sex struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Species is a reference-data entry for patient species.
type Species struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Breed is a reference-data entry for patient breeds, keyed to its species.
type Breed struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Species string `json:"species"`
}

// Device is a reference-data entry for in-clinic analyzers.
type Device struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Service is a test-guide entry offered by the Lab.
type Service struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Type        string  `json:"type"`
	Price       float64 `json:"price,omitempty"`
	Currency    string  `json:"currency,omitempty"`
}

// ReferenceData is a list-plus-hash reference data response. The hash is a
// stable digest over the items, used by consumers to detect change.
type ReferenceData[T any] struct {
	Items []T    `json:"items"`
	Hash  string `json:"hash"`
}

// CreateOrderPayload is the op-specific payload of an orders.create command.
type CreateOrderPayload struct {
	RequisitionID string       `json:"requisitionId,omitempty"`
	Patient       Patient      `json:"patient"`
	Client        Client       `json:"client"`
	Veterinarian  Veterinarian `json:"veterinarian"`
	Tests         []OrderTest  `json:"tests,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}

// IDsPayload carries accession ids for acknowledgment commands.
type IDsPayload struct {
	IDs []string `json:"ids"`
}

// ProviderConfiguration is the per-provider static configuration delivered
// with every inbound command.
type ProviderConfiguration struct {
	BaseURL        string   `json:"baseUrl"`
	UIBaseURL      string   `json:"uiBaseUrl"`
	PimsIdentifier string   `json:"PimsIdentifier"`
	IhdMnemonics   []string `json:"IhdMnemonic,omitempty"`
}

// IntegrationOptions are the per-integration credentials and switches.
type IntegrationOptions struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ClinicID        string `json:"clinicId"`
	LabID           string `json:"labId"`
	AutoSubmitOrder bool   `json:"autoSubmitOrder,omitempty"`
}

// MessageData is the envelope body shared by inbound commands and scheduled
// polling jobs. Payload stays raw so each operation decodes its own shape.
type MessageData struct {
	IntegrationID         string                `json:"integrationId"`
	ProviderConfiguration ProviderConfiguration `json:"providerConfiguration"`
	IntegrationOptions    IntegrationOptions    `json:"integrationOptions"`
	Payload               json.RawMessage       `json:"payload,omitempty"`
}
