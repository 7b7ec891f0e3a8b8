package mapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antech-v6-engine/internal/antech"
	"github.com/antech-v6-engine/internal/domain"
)

var anchor = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func TestExtractPetAge(t *testing.T) {
	tests := []struct {
		name          string
		birthdate     string
		preferred     antech.PetAgeUnits
		expectedAge   int
		expectedUnits antech.PetAgeUnits
	}{
		{"missing birthdate", "", "", DefaultPetAge, DefaultPetAgeUnits},
		{"unparseable birthdate", "15/05/2020", "", DefaultPetAge, DefaultPetAgeUnits},
		{"future birthdate", "2025-01-01", "", DefaultPetAge, DefaultPetAgeUnits},
		{"future birthdate with preferred unit", "2025-01-01", antech.AgeMonths, DefaultPetAge, DefaultPetAgeUnits},
		{"years dominate", "2020-01-15", "", 4, antech.AgeYears},
		{"months when under a year", "2023-11-20", "", 5, antech.AgeMonths},
		{"weeks when under a month", "2024-04-25", "", 2, antech.AgeWeeks},
		{"days when under a week", "2024-05-12", "", 3, antech.AgeDays},
		{"preferred months", "2020-01-15", antech.AgeMonths, 52, antech.AgeMonths},
		{"preferred weeks", "2024-05-01", antech.AgeWeeks, 2, antech.AgeWeeks},
		{"preferred unit never reads zero", "2024-05-14", antech.AgeYears, 1, antech.AgeYears},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			age, units := ExtractPetAge(tt.birthdate, tt.preferred, anchor)
			assert.Equal(t, tt.expectedAge, age)
			assert.Equal(t, tt.expectedUnits, units)
		})
	}
}

func TestExtractPetWeight(t *testing.T) {
	weight, units := ExtractPetWeight(domain.Patient{WeightMeasurement: 24.5, WeightUnits: "lbs"})
	assert.Equal(t, 24.5, weight)
	assert.Equal(t, "lbs", units)

	// The Lab rejects a measurement without units and vice versa.
	weight, units = ExtractPetWeight(domain.Patient{WeightMeasurement: 24.5})
	assert.Zero(t, weight)
	assert.Empty(t, units)

	weight, units = ExtractPetWeight(domain.Patient{WeightUnits: "lbs"})
	assert.Zero(t, weight)
	assert.Empty(t, units)
}

func TestMapPatientSex(t *testing.T) {
	tests := []struct {
		sex      string
		expected antech.PetSex
	}{
		{"M", antech.PetSexMale},
		{"F", antech.PetSexFemale},
		{"CM", antech.PetSexMaleCastrated},
		{"SF", antech.PetSexFemaleSpayed},
		{"U", antech.PetSexUnknown},
		{"", antech.PetSexUnknown},
		{"MALE", antech.PetSexUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, MapPatientSex(tt.sex), "sex %q", tt.sex)
	}
}

func TestGenerateClinicAccessionID(t *testing.T) {
	id, err := GenerateClinicAccessionID("140039", "VOY", time.UnixMilli(1717171717171))
	require.NoError(t, err)
	assert.Equal(t, "140039-VOY-171717171", id)
	assert.LessOrEqual(t, len(id), 20)
}

func TestGenerateClinicAccessionID_Validation(t *testing.T) {
	tests := []struct {
		name     string
		clinicID string
		pimsID   string
		detail   string
	}{
		{"missing clinic id", "", "VOY", "clinicId is not set in the integration options"},
		{"missing pims id", "140039", "", "pimsId is not set in the provider configuration"},
		{"pims id too short", "140039", "VO", "pimsId incorrect length: it must be 3-4 characters long"},
		{"pims id too long", "140039", "VOYAG", "pimsId incorrect length: it must be 3-4 characters long"},
		{"clinic id too long", "140039140039140", "VOY", "clinicId and/or pimsId are too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateClinicAccessionID(tt.clinicID, tt.pimsID, time.Now())
			require.Error(t, err)
			var apiErr *domain.ApiError
			require.True(t, domain.AsApiError(err, &apiErr))
			assert.Equal(t, domain.StatusValidation, apiErr.StatusCode)
			assert.Equal(t, "Error while generating a Clinic Accession ID", apiErr.Message)
			assert.Contains(t, apiErr.Errors, tt.detail)
		})
	}
}

func TestApplyTestResultSequencing(t *testing.T) {
	sequence := []string{"WBC", "RBC", "Hemoglobin"}
	assert.Equal(t, 0, ApplyTestResultSequencing("WBC", sequence))
	assert.Equal(t, 2, ApplyTestResultSequencing("Hemoglobin", sequence))
	assert.Equal(t, -1, ApplyTestResultSequencing("Platelet Count", sequence))
}

func TestSplitPersonName(t *testing.T) {
	first, last := SplitPersonName("Barker, Karen")
	assert.Equal(t, "Karen", first)
	assert.Equal(t, "Barker", last)

	first, last = SplitPersonName("Karen Barker")
	assert.Equal(t, "Karen Barker", first)
	assert.Empty(t, last)

	first, last = SplitPersonName("")
	assert.Empty(t, first)
	assert.Empty(t, last)
}

func TestIsOrphanResult(t *testing.T) {
	assert.True(t, IsOrphanResult(&antech.Result{LabAccessionID: "IRCA001"}))
	assert.False(t, IsOrphanResult(&antech.Result{ClinicAccessionID: "140039-VOY-1"}))
}
