// Package mapper translates between the PIMS-neutral schema and the Antech
// V6 wire format. All functions are pure projections; the only runtime
// inputs besides the payloads are the clock and the feature flag provider.
package mapper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antech-v6-engine/internal/antech"
	"github.com/antech-v6-engine/internal/domain"
	"github.com/antech-v6-engine/internal/flags"
)

// Mapper builds Lab requests from neutral payloads and neutral projections
// from Lab responses.
type Mapper struct {
	flags       flags.Provider
	petAgeUnits antech.PetAgeUnits
	now         func() time.Time
	log         *logrus.Entry
}

// Option customizes a Mapper.
type Option func(*Mapper)

// WithClock overrides the time source, used by tests and accession id
// generation.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

// WithPetAgeUnits sets the unit pet ages are expressed in on outbound
// orders.
func WithPetAgeUnits(units antech.PetAgeUnits) Option {
	return func(m *Mapper) {
		if units != "" {
			m.petAgeUnits = units
		}
	}
}

// New creates a Mapper. provider may be nil, which disables every flag.
func New(provider flags.Provider, log *logrus.Entry, opts ...Option) *Mapper {
	m := &Mapper{
		flags:       provider,
		petAgeUnits: antech.AgeYears,
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MapCreateOrderPayload builds the Lab pre-order from a neutral order
// creation payload. The clinic accession id comes from the payload's
// requisition id when present, otherwise it is generated.
func (m *Mapper) MapCreateOrderPayload(payload *domain.CreateOrderPayload, data *domain.MessageData) (*antech.PreOrder, error) {
	clinicID := data.IntegrationOptions.ClinicID
	pimsID := data.ProviderConfiguration.PimsIdentifier

	accessionID := payload.RequisitionID
	if accessionID == "" {
		generated, err := GenerateClinicAccessionID(clinicID, pimsID, m.now())
		if err != nil {
			return nil, err
		}
		accessionID = generated
	}

	age, ageUnits := ExtractPetAge(payload.Patient.Birthdate, m.petAgeUnits, m.now())
	weight, weightUnits := ExtractPetWeight(payload.Patient)

	order := &antech.PreOrder{
		ClinicID:          clinicID,
		ClinicAccessionID: accessionID,
		ClientID:          firstNonEmpty(idFromIdentifier(domain.ClientIDSystem, payload.Client.Identifier), payload.Client.ID),
		ClientFirstName:   strings.TrimSpace(payload.Client.FirstName),
		ClientLastName:    truncate(strings.TrimSpace(payload.Client.LastName), 20),
		DoctorID:          firstNonEmpty(idFromIdentifier(domain.VeterinarianIDSystem, payload.Veterinarian.Identifier), payload.Veterinarian.ID),
		DoctorFirstName:   payload.Veterinarian.FirstName,
		DoctorLastName:    payload.Veterinarian.LastName,
		PetID:             firstNonEmpty(idFromIdentifier(domain.PatientIDSystem, payload.Patient.Identifier), payload.Patient.ID),
		PetName:           payload.Patient.Name,
		PetSex:            MapPatientSex(payload.Patient.Sex),
		PetAge:            age,
		PetAgeUnits:       ageUnits,
		PetWeight:         weight,
		PetWeightUnits:    weightUnits,
		SpeciesID:         parseIntOr(payload.Patient.Species, DefaultPetSpecies),
		BreedID:           parseIntOr(payload.Patient.Breed, DefaultPetBreed),
	}
	if labID, err := strconv.Atoi(data.IntegrationOptions.LabID); err == nil {
		order.LabID = labID
	}
	for _, test := range payload.Tests {
		order.OrderCodes = append(order.OrderCodes, test.Code)
	}
	return order, nil
}

// MapPreOrderCreated projects a placed pre-order waiting for completion in
// the Lab UI.
func (m *Mapper) MapPreOrderCreated(preOrder *antech.PreOrder, placement *antech.PreOrderPlacement, data *domain.MessageData) *domain.OrderCreated {
	return &domain.OrderCreated{
		RequisitionID: preOrder.ClinicAccessionID,
		ExternalID:    preOrder.ClinicAccessionID,
		Status:        domain.OrderStatusWaitingForInput,
		SubmissionURI: fmt.Sprintf("%s/testGuide?ClinicAccessionID=%s&accessToken=%s",
			data.ProviderConfiguration.UIBaseURL, preOrder.ClinicAccessionID, placement.Token),
	}
}

// MapOrderCreated projects a directly submitted order.
func (m *Mapper) MapOrderCreated(order *antech.PreOrder) *domain.OrderCreated {
	return &domain.OrderCreated{
		RequisitionID: order.ClinicAccessionID,
		ExternalID:    order.ClinicAccessionID,
		Status:        domain.OrderStatusSubmitted,
	}
}

// MapOrderStatus projects one order status row onto the neutral order. Only
// the fields the status endpoint carries are populated.
func (m *Mapper) MapOrderStatus(status *antech.LabOrderStatus) *domain.Order {
	tests := make([]domain.OrderTest, 0, len(status.LabTests))
	for _, test := range status.LabTests {
		tests = append(tests, domain.OrderTest{Code: test.Mnemonic})
	}
	return &domain.Order{
		ExternalID: status.ClinicAccessionID,
		Status:     MapOrderStatusCode(status.OrderStatus),
		Tests:      tests,
		Editable:   false,
	}
}

// MapResultStatus projects one result status row onto the neutral order,
// contributing the patient, client and veterinarian the order status
// endpoint lacks.
func (m *Mapper) MapResultStatus(status *antech.LabResultStatus) *domain.Order {
	patient := &domain.Patient{
		Name:    status.Pet.Name,
		Sex:     string(antech.PetSexUnknown),
		Species: strconv.Itoa(status.SpeciesID),
		Breed:   strconv.Itoa(status.BreedID),
	}
	if status.Pet.ID != "" {
		patient.Identifier = []domain.Identifier{{System: domain.PatientIDSystem, Value: status.Pet.ID}}
	}

	client := &domain.Client{}
	client.FirstName, client.LastName = personNames(status.Client)
	if status.Client.ID != "" {
		client.Identifier = []domain.Identifier{{System: domain.ClientIDSystem, Value: status.Client.ID}}
	}

	vet := &domain.Veterinarian{}
	vet.FirstName, vet.LastName = personNames(status.Doctor)

	return &domain.Order{
		Patient:      patient,
		Client:       client,
		Veterinarian: vet,
	}
}

// MapTestGuide projects the test guide onto the neutral service list.
func (m *Mapper) MapTestGuide(guide *antech.TestGuide) []domain.Service {
	services := make([]domain.Service, 0, len(guide.LabResults))
	for _, test := range guide.LabResults {
		services = append(services, domain.Service{
			Code:        test.Code,
			Name:        test.ReportingTitle,
			Description: test.ClientFacingDescription,
			Category:    test.Category,
			Type:        "IN_HOUSE",
			Price:       test.Price,
			Currency:    "USD",
		})
	}
	return services
}

// MapResult projects one Lab result onto the neutral result. Orphan results
// carry a reconstructed inline order.
func (m *Mapper) MapResult(result *antech.Result, ctx flags.Context) *domain.Result {
	mapped := &domain.Result{
		ID:          strconv.FormatInt(result.ID, 10),
		OrderID:     result.ClinicAccessionID,
		Accession:   result.LabAccessionID,
		Status:      ExtractResultStatus(result),
		TestResults: m.extractTestResults(result.UnitCodeResults, ctx),
	}
	if IsOrphanResult(result) {
		mapped.Order = m.extractOrderFromResult(result)
	}
	return mapped
}

// MapUnitCodeResult projects one unit code result onto a neutral test
// result. index becomes the test result's seq.
func (m *Mapper) MapUnitCodeResult(unitCode *antech.UnitCodeResult, index int) domain.TestResult {
	items := make([]domain.TestResultItem, 0, len(unitCode.TestCodeResults))
	for i, tcr := range unitCode.TestCodeResults {
		items = append(items, m.MapTestCodeResult(&tcr, i, unitCode.OrderCode))
	}
	sortItems(items)
	return domain.TestResult{
		Seq:   index,
		Code:  firstNonEmpty(unitCode.OrderCode, unitCode.UnitCodeExtID),
		Name:  unitCode.UnitCodeDisplayName,
		Items: items,
	}
}

// MapTestCodeResult projects one observation. When the order code has a
// configured sequencing, the observation's seq follows it; otherwise seq is
// the received index.
func (m *Mapper) MapTestCodeResult(tcr *antech.TestCodeResult, index int, orderCode string) domain.TestResultItem {
	seq := index
	if sequence, ok := testResultSequencing[orderCode]; ok {
		seq = ApplyTestResultSequencing(tcr.Test, sequence)
	}

	item := domain.TestResultItem{
		Seq:    seq,
		Code:   tcr.TestCodeExtID,
		Name:   tcr.Test,
		Status: domain.TestResultItemDone,
	}

	if isNumeric(tcr.Result) {
		value, _ := strconv.ParseFloat(strings.TrimSpace(tcr.Result), 64)
		item.ValueQuantity = &domain.ValueQuantity{Value: value, Units: tcr.Unit}
	} else {
		s := tcr.Result
		item.ValueString = &s
	}

	if tcr.AbnormalFlag != "" {
		item.Interpretation = &domain.Interpretation{
			Code: mapAbnormalFlag(tcr.AbnormalFlag),
			Text: string(tcr.AbnormalFlag),
		}
	}

	if tcr.Range != "" {
		rr := domain.ReferenceRange{Type: domain.ReferenceRangeNormal, Text: tcr.Range}
		rr.Low, rr.High = extractRangeLimits(tcr.Range)
		item.ReferenceRange = []domain.ReferenceRange{rr}
	}

	if tcr.Comments != "" {
		item.Notes = tcr.Comments
	}
	return item
}

// ExtractResultStatus derives the neutral result status. Finalized unit
// codes that carry no observations are excluded from the total before
// deciding, so placeholder rows do not mark a result complete.
func ExtractResultStatus(result *antech.Result) domain.ResultStatus {
	pending := result.PendingTestCount
	total := result.TotalTestCount
	for _, ucr := range result.UnitCodeResults {
		if ucr.ResultStatus == antech.ResultFinal && len(ucr.TestCodeResults) == 0 {
			total--
		}
	}

	if result.Corrected != "" {
		return domain.ResultStatusRevised
	}
	if pending > 0 && pending < total {
		return domain.ResultStatusPartial
	}
	if pending == 0 && total > 0 {
		return domain.ResultStatusCompleted
	}
	return domain.ResultStatusPending
}

// MapOrderStatusCode maps the Lab order status ordinal onto the neutral
// status.
func MapOrderStatusCode(status antech.OrderStatus) domain.OrderStatus {
	switch status {
	case antech.OrderDraft:
		return domain.OrderStatusAccepted
	case antech.OrderSubmitted:
		return domain.OrderStatusSubmitted
	case antech.OrderReceived, antech.OrderPartial:
		return domain.OrderStatusPartial
	case antech.OrderResulted, antech.OrderFinal:
		return domain.OrderStatusCompleted
	case antech.OrderExpired, antech.OrderCanceled:
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusSubmitted
	}
}

func (m *Mapper) extractTestResults(unitCodes []antech.UnitCodeResult, ctx flags.Context) []domain.TestResult {
	grouped := m.flags != nil && m.flags.IsEnabled(flags.GroupedTestResults, ctx)
	m.log.WithFields(logrus.Fields{
		"flag":     flags.GroupedTestResults,
		"clinicId": ctx.ClinicID,
		"enabled":  grouped,
	}).Debug("selected test result mapping mode")

	if grouped {
		return m.extractTestResultsGrouped(unitCodes)
	}
	return m.extractTestResultsFlat(unitCodes)
}

// extractTestResultsFlat emits one test result per unit code, preserving
// received order.
func (m *Mapper) extractTestResultsFlat(unitCodes []antech.UnitCodeResult) []domain.TestResult {
	filtered := filterEmptyFinal(unitCodes)
	results := make([]domain.TestResult, 0, len(filtered))
	for i := range filtered {
		results = append(results, m.MapUnitCodeResult(&filtered[i], i))
	}
	return results
}

type unitCodeGroup struct {
	profileExtID  string
	unitCodeExtID string
	orderCode     string
	displayName   string
	items         []antech.UnitCodeResult
	originalIndex int
	status        antech.ResultStatusCode
}

// extractTestResultsGrouped emits one test result per order code group,
// flattening observations across the group's unit codes. Groups keep the
// position of their first member.
func (m *Mapper) extractTestResultsGrouped(unitCodes []antech.UnitCodeResult) []domain.TestResult {
	filtered := filterEmptyFinal(unitCodes)

	var order []string
	groups := make(map[string]*unitCodeGroup)
	for i, ucr := range filtered {
		key := firstNonEmpty(ucr.OrderCode, ucr.UnitCodeExtID)
		status := ucr.ResultStatus
		if status == "" {
			status = antech.ResultInProgress
		}
		group, ok := groups[key]
		if !ok {
			groups[key] = &unitCodeGroup{
				profileExtID:  ucr.ProfileExtID,
				unitCodeExtID: ucr.UnitCodeExtID,
				orderCode:     ucr.OrderCode,
				displayName:   firstNonEmpty(ucr.ProfileDisplayName, ucr.UnitCodeDisplayName),
				items:         []antech.UnitCodeResult{ucr},
				originalIndex: i,
				status:        status,
			}
			order = append(order, key)
			continue
		}
		group.items = append(group.items, ucr)
		group.status = combineStatus(group.status, status)
	}

	results := make([]domain.TestResult, 0, len(order))
	for _, key := range order {
		results = append(results, m.mapGroup(groups[key]))
	}
	return results
}

func (m *Mapper) mapGroup(group *unitCodeGroup) domain.TestResult {
	var items []domain.TestResultItem
	idx := 0
	for _, ucr := range group.items {
		for i := range ucr.TestCodeResults {
			items = append(items, m.MapTestCodeResult(&ucr.TestCodeResults[i], idx, group.orderCode))
			idx++
		}
	}
	sortItems(items)
	return domain.TestResult{
		Seq:   group.originalIndex,
		Code:  firstNonEmpty(group.orderCode, group.profileExtID, group.unitCodeExtID),
		Name:  group.displayName,
		Items: items,
	}
}

// combineStatus keeps the least advanced of two unit code statuses.
func combineStatus(a, b antech.ResultStatusCode) antech.ResultStatusCode {
	if a == antech.ResultInProgress && b == antech.ResultInProgress {
		return antech.ResultInProgress
	}
	if a == antech.ResultInProgress || b == antech.ResultInProgress {
		return antech.ResultPartial
	}
	if a == antech.ResultPartial || b == antech.ResultPartial {
		return antech.ResultPartial
	}
	if a == antech.ResultFinal && b == antech.ResultFinal {
		return antech.ResultFinal
	}
	return antech.ResultUpdatedCorrected
}

// filterEmptyFinal drops finalized unit codes with no observations.
func filterEmptyFinal(unitCodes []antech.UnitCodeResult) []antech.UnitCodeResult {
	filtered := make([]antech.UnitCodeResult, 0, len(unitCodes))
	for _, ucr := range unitCodes {
		if ucr.ResultStatus == antech.ResultFinal && len(ucr.TestCodeResults) == 0 {
			continue
		}
		filtered = append(filtered, ucr)
	}
	return filtered
}

func (m *Mapper) extractOrderFromResult(result *antech.Result) *domain.Order {
	tests := make([]domain.OrderTest, 0, len(result.UnitCodeResults))
	for _, ucr := range result.UnitCodeResults {
		tests = append(tests, domain.OrderTest{Code: ucr.OrderCode})
	}
	vet := &domain.Veterinarian{}
	vet.FirstName, vet.LastName = personNames(result.Doctor)
	return &domain.Order{
		ExternalID: result.LabAccessionID,
		Status:     MapOrderStatusCode(result.OrderStatus),
		Patient: &domain.Patient{
			Name:    result.Pet.Name,
			Sex:     "UNKNOWN",
			Species: "UNKNOWN",
		},
		Client: &domain.Client{
			FirstName: result.Client.FirstName,
			LastName:  result.Client.LastName,
		},
		Veterinarian: vet,
		Tests:        tests,
	}
}

func mapAbnormalFlag(flag antech.AbnormalFlag) domain.InterpretationCode {
	switch flag {
	case antech.FlagHigh:
		return domain.InterpretationHigh
	case antech.FlagLow:
		return domain.InterpretationLow
	case antech.FlagPositive:
		return domain.InterpretationPositive
	case antech.FlagAbnormal:
		return domain.InterpretationAbnormal
	default:
		return domain.InterpretationNormal
	}
}

// extractRangeLimits parses "<x", ">x" and "a-b" range texts.
func extractRangeLimits(text string) (low, high *float64) {
	if strings.HasPrefix(text, "<") {
		if v, err := strconv.ParseFloat(strings.TrimSpace(text[1:]), 64); err == nil {
			high = &v
		}
		return nil, high
	}
	if strings.HasPrefix(text, ">") {
		if v, err := strconv.ParseFloat(strings.TrimSpace(text[1:]), 64); err == nil {
			low = &v
		}
		return low, nil
	}
	parts := strings.Split(text, "-")
	if len(parts) == 2 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err == nil {
			low = &v
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			high = &v
		}
	}
	return low, high
}

// personNames resolves first and last name from the Lab person shape,
// splitting a combined "Last, First" Name when the split fields are absent.
func personNames(person antech.PersonDetails) (first, last string) {
	if person.FirstName != "" || person.LastName != "" {
		return person.FirstName, person.LastName
	}
	if person.Name != "" {
		return SplitPersonName(person.Name)
	}
	return "", ""
}

func sortItems(items []domain.TestResultItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Seq < items[j].Seq
	})
}

func parseIntOr(s string, fallback int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
