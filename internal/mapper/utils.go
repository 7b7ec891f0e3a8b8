package mapper

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/antech-v6-engine/internal/antech"
	"github.com/antech-v6-engine/internal/domain"
)

// Defaults used when an order payload omits patient data the Lab requires.
const (
	DefaultPetAge      = 1
	DefaultPetAgeUnits = antech.AgeYears
	DefaultPetSpecies  = 41
	DefaultPetBreed    = 370
)

const maxClinicAccessionIDLen = 20

// ExtractPetAge derives the Lab age fields from a YYYY-MM-DD birthdate.
// With a preferred unit the age is expressed in that unit and never reads
// zero; without one the largest non-zero calendar unit wins. Missing,
// unparseable and future birthdates fall back to the default age.
func ExtractPetAge(birthdate string, preferred antech.PetAgeUnits, now time.Time) (int, antech.PetAgeUnits) {
	if birthdate == "" {
		return DefaultPetAge, DefaultPetAgeUnits
	}
	born, err := time.Parse("2006-01-02", birthdate)
	if err != nil {
		return DefaultPetAge, DefaultPetAgeUnits
	}

	days := int(now.Sub(born).Hours() / 24)
	weeks := days / 7
	months := calendarMonths(born, now)
	years := months / 12

	switch preferred {
	case antech.AgeYears:
		if years < 0 {
			return DefaultPetAge, DefaultPetAgeUnits
		}
		return max(1, years), antech.AgeYears
	case antech.AgeMonths:
		if months < 0 {
			return DefaultPetAge, DefaultPetAgeUnits
		}
		return max(1, months), antech.AgeMonths
	case antech.AgeWeeks:
		if weeks < 0 {
			return DefaultPetAge, DefaultPetAgeUnits
		}
		return max(1, weeks), antech.AgeWeeks
	case antech.AgeDays:
		if days < 0 {
			return DefaultPetAge, DefaultPetAgeUnits
		}
		return max(1, days), antech.AgeDays
	}

	switch {
	case years > 0:
		return years, antech.AgeYears
	case months > 0:
		return months, antech.AgeMonths
	case weeks > 0:
		return weeks, antech.AgeWeeks
	case days > 0:
		return days, antech.AgeDays
	}
	return DefaultPetAge, DefaultPetAgeUnits
}

// calendarMonths counts whole calendar months from born to now; negative
// when born is in the future.
func calendarMonths(born, now time.Time) int {
	months := (now.Year()-born.Year())*12 + int(now.Month()) - int(born.Month())
	if now.Day() < born.Day() {
		months--
	}
	return months
}

// ExtractPetWeight returns the Lab weight fields, or zero values when either
// the measurement or the units are missing. The Lab rejects one without the
// other.
func ExtractPetWeight(patient domain.Patient) (float64, string) {
	if patient.WeightMeasurement != 0 && patient.WeightUnits != "" {
		return patient.WeightMeasurement, patient.WeightUnits
	}
	return 0, ""
}

// MapPatientSex maps the neutral sex code to the Lab code.
func MapPatientSex(sex string) antech.PetSex {
	switch sex {
	case "M":
		return antech.PetSexMale
	case "F":
		return antech.PetSexFemale
	case "CM":
		return antech.PetSexMaleCastrated
	case "SF":
		return antech.PetSexFemaleSpayed
	default:
		return antech.PetSexUnknown
	}
}

// GenerateClinicAccessionID builds a clinic accession id of the form
// {clinicId}-{pimsId}-{seq}. The seq part is derived from the clock and
// bounded so the whole id fits the Lab's 20 character limit.
func GenerateClinicAccessionID(clinicID, pimsID string, now time.Time) (string, error) {
	if clinicID == "" {
		return "", domain.NewValidationError("Error while generating a Clinic Accession ID", "clinicId is not set in the integration options")
	}
	if pimsID == "" {
		return "", domain.NewValidationError("Error while generating a Clinic Accession ID", "pimsId is not set in the provider configuration")
	}
	if len(pimsID) < 3 || len(pimsID) > 4 {
		return "", domain.NewValidationError("Error while generating a Clinic Accession ID", "pimsId incorrect length: it must be 3-4 characters long")
	}

	maxSeqLen := maxClinicAccessionIDLen - len(clinicID) - len(pimsID) - 2
	if maxSeqLen <= 0 {
		return "", domain.NewValidationError("Error while generating a Clinic Accession ID", "clinicId and/or pimsId are too long")
	}

	seq := now.UnixMilli() % int64(math.Pow10(maxSeqLen))
	return fmt.Sprintf("%s-%s-%d", clinicID, pimsID, seq), nil
}

// ApplyTestResultSequencing returns the position of testName in the
// configured sequence, or -1 when absent.
func ApplyTestResultSequencing(testName string, sequence []string) int {
	for i, name := range sequence {
		if name == testName {
			return i
		}
	}
	return -1
}

// IsOrphanResult reports whether a result could not be matched to a clinic
// accession.
func IsOrphanResult(result *antech.Result) bool {
	return result.ClinicAccessionID == ""
}

// SplitPersonName splits a combined "Last, First" name. Anything that does
// not match that shape lands in first.
func SplitPersonName(name string) (first, last string) {
	parts := strings.Split(name, ", ")
	if len(parts) == 2 {
		return parts[1], parts[0]
	}
	return name, ""
}

// isNumeric reports whether s parses as a float.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// idFromIdentifier returns the identifier value for the given system.
func idFromIdentifier(system string, identifiers []domain.Identifier) string {
	for _, id := range identifiers {
		if id.System == system {
			return id.Value
		}
	}
	return ""
}
