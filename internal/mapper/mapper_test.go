package mapper

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antech-v6-engine/internal/antech"
	"github.com/antech-v6-engine/internal/domain"
	"github.com/antech-v6-engine/internal/flags"
)

func newTestMapper(t *testing.T, flagSet flags.Static, opts ...Option) *Mapper {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(flagSet, logger.WithField("test", t.Name()), opts...)
}

func testMessageData() *domain.MessageData {
	return &domain.MessageData{
		IntegrationID: "int-1",
		ProviderConfiguration: domain.ProviderConfiguration{
			BaseURL:        "https://lab.example.com",
			UIBaseURL:      "https://ui.example.com",
			PimsIdentifier: "VOY",
		},
		IntegrationOptions: domain.IntegrationOptions{
			Username: "user",
			Password: "pass",
			ClinicID: "140039",
			LabID:    "1",
		},
	}
}

func TestMapCreateOrderPayload(t *testing.T) {
	clock := func() time.Time { return time.UnixMilli(1717171717171) }
	m := newTestMapper(t, nil, WithClock(clock))

	payload := &domain.CreateOrderPayload{
		Patient: domain.Patient{
			Name:              "Rex",
			Sex:               "CM",
			Species:           "42",
			Breed:             "650",
			Birthdate:         "2020-01-15",
			WeightMeasurement: 24.5,
			WeightUnits:       "lbs",
			Identifier:        []domain.Identifier{{System: domain.PatientIDSystem, Value: "pet-77"}},
		},
		Client: domain.Client{
			ID:        "client-9",
			FirstName: "  Joy ",
			LastName:  "Hutchinson-Hinderer-With-A-Very-Long-Name",
		},
		Veterinarian: domain.Veterinarian{
			FirstName:  "foo",
			LastName:   "bar",
			Identifier: []domain.Identifier{{System: domain.VeterinarianIDSystem, Value: "vet-12"}},
		},
		Tests: []domain.OrderTest{{Code: "SA380"}, {Code: "CBC"}},
	}

	order, err := m.MapCreateOrderPayload(payload, testMessageData())
	require.NoError(t, err)

	assert.Equal(t, "140039", order.ClinicID)
	assert.Equal(t, 1, order.LabID)
	assert.Equal(t, "client-9", order.ClientID)
	assert.Equal(t, "Joy", order.ClientFirstName)
	assert.Len(t, order.ClientLastName, 20)
	assert.Equal(t, "Hutchinson-Hinderer-", order.ClientLastName)
	assert.Equal(t, "vet-12", order.DoctorID)
	assert.Equal(t, "pet-77", order.PetID)
	assert.Equal(t, "Rex", order.PetName)
	assert.Equal(t, antech.PetSexMaleCastrated, order.PetSex)
	assert.Equal(t, antech.AgeYears, order.PetAgeUnits)
	assert.Equal(t, 24.5, order.PetWeight)
	assert.Equal(t, "lbs", order.PetWeightUnits)
	assert.Equal(t, 42, order.SpeciesID)
	assert.Equal(t, 650, order.BreedID)
	assert.Equal(t, []string{"SA380", "CBC"}, order.OrderCodes)

	// Generated accession id: {clinicId}-{pimsId}-{seq}, within 20 chars.
	assert.Regexp(t, `^140039-VOY-\d+$`, order.ClinicAccessionID)
	assert.LessOrEqual(t, len(order.ClinicAccessionID), 20)
}

func TestMapCreateOrderPayload_UsesProvidedRequisitionID(t *testing.T) {
	m := newTestMapper(t, nil)

	payload := &domain.CreateOrderPayload{
		RequisitionID: "140039-VOY-12345",
		Patient:       domain.Patient{Name: "Rex"},
	}
	order, err := m.MapCreateOrderPayload(payload, testMessageData())
	require.NoError(t, err)
	assert.Equal(t, "140039-VOY-12345", order.ClinicAccessionID)
	assert.Equal(t, DefaultPetSpecies, order.SpeciesID)
	assert.Equal(t, DefaultPetBreed, order.BreedID)
	assert.Equal(t, antech.PetSexUnknown, order.PetSex)
}

func TestMapCreateOrderPayload_OmitsIncompleteWeight(t *testing.T) {
	m := newTestMapper(t, nil)

	payload := &domain.CreateOrderPayload{
		RequisitionID: "140039-VOY-12345",
		Patient:       domain.Patient{Name: "Rex", WeightMeasurement: 24.5},
	}
	order, err := m.MapCreateOrderPayload(payload, testMessageData())
	require.NoError(t, err)
	assert.Zero(t, order.PetWeight)
	assert.Empty(t, order.PetWeightUnits)
}

func TestMapPreOrderCreated(t *testing.T) {
	m := newTestMapper(t, nil)

	created := m.MapPreOrderCreated(
		&antech.PreOrder{ClinicAccessionID: "140039-VOY-12345"},
		&antech.PreOrderPlacement{Value: "ok", Token: "tok-1"},
		testMessageData(),
	)
	assert.Equal(t, &domain.OrderCreated{
		RequisitionID: "140039-VOY-12345",
		ExternalID:    "140039-VOY-12345",
		Status:        domain.OrderStatusWaitingForInput,
		SubmissionURI: "https://ui.example.com/testGuide?ClinicAccessionID=140039-VOY-12345&accessToken=tok-1",
	}, created)
}

func TestMapOrderCreated(t *testing.T) {
	m := newTestMapper(t, nil)

	created := m.MapOrderCreated(&antech.PreOrder{ClinicAccessionID: "140039-VOY-12345"})
	assert.Equal(t, domain.OrderStatusSubmitted, created.Status)
	assert.Empty(t, created.SubmissionURI)
}

func TestMapOrderStatusCode(t *testing.T) {
	tests := []struct {
		status   antech.OrderStatus
		expected domain.OrderStatus
	}{
		{antech.OrderDraft, domain.OrderStatusAccepted},
		{antech.OrderSubmitted, domain.OrderStatusSubmitted},
		{antech.OrderReceived, domain.OrderStatusPartial},
		{antech.OrderPartial, domain.OrderStatusPartial},
		{antech.OrderResulted, domain.OrderStatusCompleted},
		{antech.OrderFinal, domain.OrderStatusCompleted},
		{antech.OrderExpired, domain.OrderStatusCancelled},
		{antech.OrderCanceled, domain.OrderStatusCancelled},
		{antech.OrderStatus(99), domain.OrderStatusSubmitted},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, MapOrderStatusCode(tt.status))
		})
	}
}

func TestMapOrderStatus(t *testing.T) {
	m := newTestMapper(t, nil)

	order := m.MapOrderStatus(&antech.LabOrderStatus{
		ClinicAccessionID: "140039-VOY-12345",
		OrderStatus:       antech.OrderSubmitted,
		LabTests:          []antech.LabTest{{Mnemonic: "SA380"}, {Mnemonic: "CBC"}},
	})
	assert.Equal(t, "140039-VOY-12345", order.ExternalID)
	assert.Equal(t, domain.OrderStatusSubmitted, order.Status)
	assert.Equal(t, []domain.OrderTest{{Code: "SA380"}, {Code: "CBC"}}, order.Tests)
	assert.False(t, order.Editable)
}

func TestMapResultStatus(t *testing.T) {
	m := newTestMapper(t, nil)

	order := m.MapResultStatus(&antech.LabResultStatus{
		ClinicAccessionID: "140039-VOY-12345",
		Pet:               antech.PetDetails{ID: "2147305531", Name: "JOJO"},
		SpeciesID:         42,
		BreedID:           650,
		Client:            antech.PersonDetails{ID: "BAC0LWT", FirstName: "Joy", LastName: "Hua"},
		Doctor:            antech.PersonDetails{FirstName: "foo", LastName: "bar"},
	})
	require.NotNil(t, order.Patient)
	assert.Equal(t, "JOJO", order.Patient.Name)
	assert.Equal(t, "U", order.Patient.Sex)
	assert.Equal(t, "42", order.Patient.Species)
	assert.Equal(t, "650", order.Patient.Breed)
	assert.Equal(t, []domain.Identifier{{System: domain.PatientIDSystem, Value: "2147305531"}}, order.Patient.Identifier)
	require.NotNil(t, order.Client)
	assert.Equal(t, "Joy", order.Client.FirstName)
	assert.Equal(t, "Hua", order.Client.LastName)
	assert.Equal(t, []domain.Identifier{{System: domain.ClientIDSystem, Value: "BAC0LWT"}}, order.Client.Identifier)
	require.NotNil(t, order.Veterinarian)
	assert.Equal(t, "foo", order.Veterinarian.FirstName)
	assert.Equal(t, "bar", order.Veterinarian.LastName)
}

func TestMapResultStatus_SplitsCombinedDoctorName(t *testing.T) {
	m := newTestMapper(t, nil)

	order := m.MapResultStatus(&antech.LabResultStatus{
		Doctor: antech.PersonDetails{Name: "Barker, Karen"},
	})
	assert.Equal(t, "Karen", order.Veterinarian.FirstName)
	assert.Equal(t, "Barker", order.Veterinarian.LastName)
}

func TestMapTestCodeResult_Numeric(t *testing.T) {
	m := newTestMapper(t, nil)

	item := m.MapTestCodeResult(&antech.TestCodeResult{
		TestCodeExtID: "1016",
		Test:          "ALBUMIN",
		Result:        "3.3",
		Range:         "2.5-3.9",
		Unit:          "g/dL",
	}, 0, "")

	low, high := 2.5, 3.9
	assert.Equal(t, domain.TestResultItem{
		Seq:           0,
		Code:          "1016",
		Name:          "ALBUMIN",
		Status:        domain.TestResultItemDone,
		ValueQuantity: &domain.ValueQuantity{Value: 3.3, Units: "g/dL"},
		ReferenceRange: []domain.ReferenceRange{
			{Type: domain.ReferenceRangeNormal, Text: "2.5-3.9", Low: &low, High: &high},
		},
	}, item)
}

func TestMapTestCodeResult_NumericWithAbnormalFlag(t *testing.T) {
	m := newTestMapper(t, nil)

	item := m.MapTestCodeResult(&antech.TestCodeResult{
		TestCodeExtID: "1010",
		Test:          "Alk Phosphatase",
		AbnormalFlag:  antech.FlagHigh,
		Result:        "128",
		Range:         "6-102",
		Unit:          "IU/L",
	}, 0, "")

	require.NotNil(t, item.ValueQuantity)
	assert.Equal(t, 128.0, item.ValueQuantity.Value)
	require.NotNil(t, item.Interpretation)
	assert.Equal(t, domain.InterpretationHigh, item.Interpretation.Code)
	assert.Equal(t, "H", item.Interpretation.Text)
}

func TestMapTestCodeResult_NonNumeric(t *testing.T) {
	m := newTestMapper(t, nil)

	item := m.MapTestCodeResult(&antech.TestCodeResult{
		TestCodeExtID: "9981",
		Test:          "Renal Tech Prediction",
		AbnormalFlag:  antech.FlagPositive,
		Result:        "POSITIVE",
		Comments:      "This patient's RenalTech status indicates chronic kidney disease risk.",
	}, 0, "")

	assert.Nil(t, item.ValueQuantity)
	require.NotNil(t, item.ValueString)
	assert.Equal(t, "POSITIVE", *item.ValueString)
	require.NotNil(t, item.Interpretation)
	assert.Equal(t, domain.InterpretationPositive, item.Interpretation.Code)
	assert.Equal(t, "P", item.Interpretation.Text)
	assert.NotEmpty(t, item.Notes)
}

func TestMapTestCodeResult_OpenEndedRange(t *testing.T) {
	m := newTestMapper(t, nil)

	item := m.MapTestCodeResult(&antech.TestCodeResult{
		TestCodeExtID: "3575",
		Test:          "SDMA",
		Result:        "13.8",
		Range:         "<15.0",
		Unit:          "UG/dL",
	}, 0, "")

	require.Len(t, item.ReferenceRange, 1)
	rr := item.ReferenceRange[0]
	assert.Equal(t, "<15.0", rr.Text)
	assert.Nil(t, rr.Low)
	require.NotNil(t, rr.High)
	assert.Equal(t, 15.0, *rr.High)

	item = m.MapTestCodeResult(&antech.TestCodeResult{
		TestCodeExtID: "3575",
		Test:          "SDMA",
		Result:        "16.2",
		Range:         ">15.0",
	}, 0, "")
	rr = item.ReferenceRange[0]
	require.NotNil(t, rr.Low)
	assert.Equal(t, 15.0, *rr.Low)
	assert.Nil(t, rr.High)
}

func TestMapTestCodeResult_SequencedOrderCode(t *testing.T) {
	m := newTestMapper(t, nil)

	// Hemoglobin sits at position 2 of the CBC sequencing regardless of the
	// received index.
	item := m.MapTestCodeResult(&antech.TestCodeResult{
		TestCodeExtID: "2001",
		Test:          "Hemoglobin",
		Result:        "14.1",
	}, 7, "CBC")
	assert.Equal(t, 2, item.Seq)

	// Names outside the sequencing land at -1.
	item = m.MapTestCodeResult(&antech.TestCodeResult{
		TestCodeExtID: "2099",
		Test:          "Unsequenced Analyte",
		Result:        "1",
	}, 7, "CBC")
	assert.Equal(t, -1, item.Seq)
}

func TestMapUnitCodeResult(t *testing.T) {
	m := newTestMapper(t, nil)

	result := m.MapUnitCodeResult(&antech.UnitCodeResult{
		UnitCodeExtID:       "502020",
		UnitCodeDisplayName: "Alkaline Phosphatase",
		TestCodeResults: []antech.TestCodeResult{
			{TestCodeExtID: "1010", Test: "Alk Phosphatase", Result: "128"},
		},
	}, 0)

	assert.Equal(t, 0, result.Seq)
	assert.Equal(t, "502020", result.Code)
	assert.Equal(t, "Alkaline Phosphatase", result.Name)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "1010", result.Items[0].Code)
}

func TestMapUnitCodeResult_PrefersOrderCode(t *testing.T) {
	m := newTestMapper(t, nil)

	result := m.MapUnitCodeResult(&antech.UnitCodeResult{
		OrderCode:           "BANT805",
		UnitCodeExtID:       "502020",
		UnitCodeDisplayName: "Banfield Ova and Parasite",
	}, 0)
	assert.Equal(t, "BANT805", result.Code)
}

func tyroidProfileResult() *antech.Result {
	return &antech.Result{
		ID:                305580024,
		LabAccessionID:    "DLEA00533798",
		ClinicAccessionID: "7092-VOY-37157652213",
		OrderStatus:       antech.OrderPartial,
		PendingTestCount:  2,
		TotalTestCount:    4,
		UnitCodeResults: []antech.UnitCodeResult{
			{OrderCode: "SA380", UnitCodeExtID: "701", UnitCodeDisplayName: "", ResultStatus: antech.ResultInProgress},
			{
				OrderCode: "SA380", UnitCodeExtID: "702", UnitCodeDisplayName: "TSH",
				ResultStatus: antech.ResultFinal,
				TestCodeResults: []antech.TestCodeResult{
					{TestCodeExtID: "4001", Test: "TSH", Result: "0.05", Unit: "ng/mL"},
				},
			},
			{OrderCode: "SA380", UnitCodeExtID: "703", UnitCodeDisplayName: "Free T4 By Equilibrium Dialysis", ResultStatus: antech.ResultInProgress},
			{OrderCode: "SA380", UnitCodeExtID: "704", UnitCodeDisplayName: "T4", ResultStatus: antech.ResultInProgress},
		},
	}
}

func TestMapResult_Flat(t *testing.T) {
	m := newTestMapper(t, nil)

	result := m.MapResult(tyroidProfileResult(), flags.Context{})
	assert.Equal(t, "305580024", result.ID)
	assert.Equal(t, "7092-VOY-37157652213", result.OrderID)
	assert.Equal(t, "DLEA00533798", result.Accession)
	assert.Equal(t, domain.ResultStatusPartial, result.Status)
	assert.Nil(t, result.Order)

	require.Len(t, result.TestResults, 4)
	for i, name := range []string{"", "TSH", "Free T4 By Equilibrium Dialysis", "T4"} {
		assert.Equal(t, i, result.TestResults[i].Seq)
		assert.Equal(t, "SA380", result.TestResults[i].Code)
		assert.Equal(t, name, result.TestResults[i].Name)
	}
	require.Len(t, result.TestResults[1].Items, 1)
	assert.Equal(t, "4001", result.TestResults[1].Items[0].Code)
}

func TestMapResult_FlatDropsEmptyFinalUnitCodes(t *testing.T) {
	m := newTestMapper(t, nil)

	labResult := tyroidProfileResult()
	// A finalized unit code without observations is a placeholder row.
	labResult.UnitCodeResults[2].ResultStatus = antech.ResultFinal

	result := m.MapResult(labResult, flags.Context{})
	require.Len(t, result.TestResults, 3)
	assert.Equal(t, []string{"", "TSH", "T4"}, []string{
		result.TestResults[0].Name,
		result.TestResults[1].Name,
		result.TestResults[2].Name,
	})
}

func TestMapResult_Grouped(t *testing.T) {
	m := newTestMapper(t, flags.Static{flags.GroupedTestResults: true})

	labResult := tyroidProfileResult()
	labResult.UnitCodeResults[1].ProfileDisplayName = "Thyroid Profile"

	result := m.MapResult(labResult, flags.Context{IntegrationID: "int-1"})
	require.Len(t, result.TestResults, 1)
	group := result.TestResults[0]
	assert.Equal(t, 0, group.Seq)
	assert.Equal(t, "SA380", group.Code)
	// Name comes from the first unit code in the group; the first row has no
	// display name at all.
	assert.Equal(t, "", group.Name)
	require.Len(t, group.Items, 1)
	assert.Equal(t, "TSH", group.Items[0].Name)
}

func TestMapResult_GroupedKeepsDistinctOrderCodesApart(t *testing.T) {
	m := newTestMapper(t, flags.Static{flags.GroupedTestResults: true})

	result := m.MapResult(&antech.Result{
		ID:                1,
		LabAccessionID:    "DLEA1",
		TotalTestCount:    3,
		PendingTestCount:  0,
		ClinicAccessionID: "140039-VOY-1",
		UnitCodeResults: []antech.UnitCodeResult{
			{OrderCode: "SA380", UnitCodeExtID: "701", ProfileDisplayName: "Thyroid Profile", ResultStatus: antech.ResultFinal,
				TestCodeResults: []antech.TestCodeResult{{TestCodeExtID: "1", Test: "T4", Result: "1.1"}}},
			{OrderCode: "CBC", UnitCodeExtID: "801", UnitCodeDisplayName: "CBC", ResultStatus: antech.ResultFinal,
				TestCodeResults: []antech.TestCodeResult{{TestCodeExtID: "2", Test: "WBC", Result: "6.2"}}},
			{OrderCode: "SA380", UnitCodeExtID: "702", UnitCodeDisplayName: "TSH", ResultStatus: antech.ResultFinal,
				TestCodeResults: []antech.TestCodeResult{{TestCodeExtID: "3", Test: "TSH", Result: "0.05"}}},
		},
	}, flags.Context{})

	require.Len(t, result.TestResults, 2)
	assert.Equal(t, "SA380", result.TestResults[0].Code)
	assert.Equal(t, "Thyroid Profile", result.TestResults[0].Name)
	assert.Len(t, result.TestResults[0].Items, 2)
	assert.Equal(t, "CBC", result.TestResults[1].Code)
	assert.Len(t, result.TestResults[1].Items, 1)
}

func TestMapResult_OrphanCarriesInlineOrder(t *testing.T) {
	m := newTestMapper(t, nil)

	result := m.MapResult(&antech.Result{
		ID:               42,
		LabAccessionID:   "IRCA00123456",
		OrderStatus:      antech.OrderFinal,
		TotalTestCount:   1,
		PendingTestCount: 0,
		UnitCodeResults: []antech.UnitCodeResult{
			{OrderCode: "CHEM", UnitCodeExtID: "901", UnitCodeDisplayName: "Chemistry",
				TestCodeResults: []antech.TestCodeResult{{TestCodeExtID: "1016", Test: "ALBUMIN", Result: "3.3"}}},
		},
		Pet:    antech.PetDetails{Name: "JOJO"},
		Client: antech.PersonDetails{FirstName: "Joy", LastName: "Hua"},
		Doctor: antech.PersonDetails{Name: "Barker, Karen"},
	}, flags.Context{})

	require.NotNil(t, result.Order)
	assert.Equal(t, "IRCA00123456", result.Order.ExternalID)
	assert.Equal(t, domain.OrderStatusCompleted, result.Order.Status)
	assert.Equal(t, "JOJO", result.Order.Patient.Name)
	assert.Equal(t, "UNKNOWN", result.Order.Patient.Sex)
	assert.Equal(t, "UNKNOWN", result.Order.Patient.Species)
	assert.Equal(t, "Joy", result.Order.Client.FirstName)
	assert.Equal(t, "Karen", result.Order.Veterinarian.FirstName)
	assert.Equal(t, "Barker", result.Order.Veterinarian.LastName)
	assert.Equal(t, []domain.OrderTest{{Code: "CHEM"}}, result.Order.Tests)
}

func TestExtractResultStatus(t *testing.T) {
	tests := []struct {
		name     string
		result   antech.Result
		expected domain.ResultStatus
	}{
		{
			name:     "corrected result",
			result:   antech.Result{Corrected: "C", PendingTestCount: 0, TotalTestCount: 2},
			expected: domain.ResultStatusRevised,
		},
		{
			name:     "partially resulted",
			result:   antech.Result{PendingTestCount: 1, TotalTestCount: 3},
			expected: domain.ResultStatusPartial,
		},
		{
			name:     "fully resulted",
			result:   antech.Result{PendingTestCount: 0, TotalTestCount: 3},
			expected: domain.ResultStatusCompleted,
		},
		{
			name:     "nothing resulted yet",
			result:   antech.Result{PendingTestCount: 2, TotalTestCount: 2},
			expected: domain.ResultStatusPending,
		},
		{
			name: "empty finalized unit codes do not complete a result",
			result: antech.Result{
				PendingTestCount: 0,
				TotalTestCount:   2,
				UnitCodeResults: []antech.UnitCodeResult{
					{ResultStatus: antech.ResultFinal},
					{ResultStatus: antech.ResultFinal},
				},
			},
			expected: domain.ResultStatusPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractResultStatus(&tt.result))
		})
	}
}

func TestMapTestGuide(t *testing.T) {
	m := newTestMapper(t, nil)

	services := m.MapTestGuide(&antech.TestGuide{
		TotalCount: 1,
		LabResults: []antech.Test{{
			Code:                    "AC210",
			ReportingTitle:          "Adult Chem Lytes,CBC,O&P,Accuplex,SDMA",
			ClientFacingDescription: "Wellness chemistry with electrolytes",
			Category:                "Wellness",
			Price:                   101.5,
		}},
	})
	require.Len(t, services, 1)
	assert.Equal(t, "Adult Chem Lytes,CBC,O&P,Accuplex,SDMA", services[0].Name)
	assert.Equal(t, "IN_HOUSE", services[0].Type)
	assert.Equal(t, "USD", services[0].Currency)
	assert.Equal(t, 101.5, services[0].Price)
}
