// Package validator decodes Egyptian national IDs.
//
// Format: 14 digits.
//   - Digit 1: birth century (2 for 1900s, 3 for 2000s)
//   - Digits 2-7: birth date (YYMMDD)
//   - Digits 8-9: governorate code
//   - Digits 10-13: sequence number (odd last digit = male, even = female)
//   - Digit 14: check digit (not validated; the algorithm is not publicly
//     documented)
//
// Validation is a pure function of the input and the clock. It holds no
// state and is safe for concurrent use.
package validator

import (
	"fmt"
	"strings"
	"time"
)

// governorateCodes maps the two-digit issuing-governorate code to its name.
var governorateCodes = map[string]string{
	"01": "Cairo",
	"02": "Alexandria",
	"03": "Port Said",
	"04": "Suez",
	"11": "Damietta",
	"12": "Dakahlia",
	"13": "Sharqia",
	"14": "Qalyubia",
	"15": "Kafr El Sheikh",
	"16": "Gharbiyah",
	"17": "Menoufia",
	"18": "Beheira",
	"19": "Ismailia",
	"21": "Giza",
	"22": "Beni Suef",
	"23": "Fayoum",
	"24": "Minya",
	"25": "Asyut",
	"26": "Sohag",
	"27": "Qena",
	"28": "Aswan",
	"29": "Luxor",
	"31": "Red Sea",
	"32": "New Valley",
	"33": "Matrouh",
	"34": "North Sinai",
	"35": "South Sinai",
	"88": "Foreign Born",
}

// Details carries the per-field outcomes of a successful decode.
type Details struct {
	FormatValid      bool `json:"format_valid"`
	DateValid        bool `json:"date_valid"`
	GovernorateValid bool `json:"governorate_valid"`
}

// Result is the decoded content of a valid national ID.
type Result struct {
	NationalID        string  `json:"national_id"`
	IsValid           bool    `json:"is_valid"`
	BirthDate         string  `json:"birth_date"`
	Age               int     `json:"age"`
	Gender            string  `json:"gender"`
	Governorate       string  `json:"governorate"`
	GovernorateCode   string  `json:"governorate_code"`
	Century           string  `json:"century"`
	SequenceNumber    string  `json:"sequence_number"`
	ValidationDetails Details `json:"validation_details"`
}

// ValidationError describes why an ID failed to decode. The message is safe
// to return to callers.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Sanitize strips every non-digit character from the input.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate decodes a national ID at the current instant.
func Validate(raw string) (*Result, error) {
	return ValidateAt(raw, time.Now().UTC())
}

// ValidateAt decodes a national ID as of the given instant. The instant
// only affects the future-date check and the computed age.
func ValidateAt(raw string, now time.Time) (*Result, error) {
	id := Sanitize(raw)

	if id == "" {
		return nil, invalid("national ID cannot be empty")
	}
	if len(id) != 14 {
		return nil, invalid("national ID must be exactly 14 digits, got %d", len(id))
	}
	century := id[0]
	if century != '2' && century != '3' {
		return nil, invalid("invalid century digit, must be 2 (1900s) or 3 (2000s)")
	}

	birthDate, err := parseBirthDate(century, id[1:7], now)
	if err != nil {
		return nil, err
	}

	govCode := id[7:9]
	sequence := id[9:13]

	centuryName := "20th"
	if century == '3' {
		centuryName = "21st"
	}

	govName, govKnown := governorateCodes[govCode]
	if !govKnown {
		govName = fmt.Sprintf("Unknown Governorate (Code: %s)", govCode)
	}

	return &Result{
		NationalID:      id,
		IsValid:         true,
		BirthDate:       birthDate.Format("2006-01-02"),
		Age:             age(birthDate, now),
		Gender:          gender(sequence),
		Governorate:     govName,
		GovernorateCode: govCode,
		Century:         centuryName,
		SequenceNumber:  sequence,
		ValidationDetails: Details{
			FormatValid:      true,
			DateValid:        true,
			GovernorateValid: govKnown,
		},
	}, nil
}

func parseBirthDate(century byte, yymmdd string, now time.Time) (time.Time, error) {
	year := 1900
	if century == '3' {
		year = 2000
	}
	year += int(yymmdd[0]-'0')*10 + int(yymmdd[1]-'0')
	month := int(yymmdd[2]-'0')*10 + int(yymmdd[3]-'0')
	day := int(yymmdd[4]-'0')*10 + int(yymmdd[5]-'0')

	if month < 1 || month > 12 {
		return time.Time{}, invalid("invalid month: %02d", month)
	}
	if day < 1 || day > 31 {
		return time.Time{}, invalid("invalid day: %02d", day)
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range days (Feb 30 -> Mar 2), which is
	// an invalid encoding here rather than a date to accept.
	if date.Year() != year || date.Month() != time.Month(month) || date.Day() != day {
		return time.Time{}, invalid("invalid date: %04d-%02d-%02d", year, month, day)
	}
	if date.After(now) {
		return time.Time{}, invalid("birth date cannot be in the future")
	}

	return date, nil
}

func age(birthDate, now time.Time) int {
	years := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() ||
		(now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		years--
	}
	return years
}

func gender(sequence string) string {
	last := sequence[len(sequence)-1] - '0'
	if last%2 == 1 {
		return "Male"
	}
	return "Female"
}
