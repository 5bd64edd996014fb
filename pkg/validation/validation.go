package validation

import (
	"regexp"
	"strings"
)

var (
	emailRegex  = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRegex  = regexp.MustCompile(`^\+?[0-9]{6,15}$`)
	flightRegex = regexp.MustCompile(`^([A-Z]{2}|[A-Z][0-9]|[0-9][A-Z])[0-9]{1,4}[A-Z]?$`)
	trainRegex  = regexp.MustCompile(`^(TGV|TER|IC|ICN|OUIGO|LYRIA|EC|ES)?[0-9]{2,6}$`)

	phoneSeparators = strings.NewReplacer(" ", "", ".", "", "-", "", "(", "", ")", "")
)

func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && emailRegex.MatchString(email) && len(email) <= 200
}

// NormalizePhone drops the separators people type in phone numbers.
func NormalizePhone(phone string) string {
	return phoneSeparators.Replace(strings.TrimSpace(phone))
}

func ValidatePhone(phone string) bool {
	phone = NormalizePhone(phone)
	return phone != "" && phoneRegex.MatchString(phone)
}

func ValidateName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) >= 2 && len(name) <= 200
}

func ValidatePassword(password string) bool {
	return len(password) >= 8 && len(password) <= 100
}

func ValidateCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// NormalizeReference upper-cases a flight or train number and removes spaces.
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(ref), " ", ""))
}

// ValidateFlightNumber accepts IATA style numbers such as AF1234 or U21534.
// An empty value is valid.
func ValidateFlightNumber(ref string) bool {
	ref = NormalizeReference(ref)
	return ref == "" || flightRegex.MatchString(ref)
}

// ValidateTrainNumber accepts numbers such as 6201 or TGV6201. An empty value
// is valid.
func ValidateTrainNumber(ref string) bool {
	ref = NormalizeReference(ref)
	return ref == "" || trainRegex.MatchString(ref)
}
