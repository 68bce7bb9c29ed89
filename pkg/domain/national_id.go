package domain

import (
	dErrors "skillpass/pkg/domain-errors"
)

// NationalID is a format-validated NIK (16-digit national identity number).
// Invariant: 16 numeric digits with a known leading province code.
//
// The value is held only for the duration of a verification transaction and
// must never be persisted in plaintext or written to logs. Use Hash-derived
// references when a durable trace is required.
type NationalID string

// nikLength is the fixed NIK length: 2 province + 2 regency + 2 district
// digits, 6 birth-date digits, 4 serial digits.
const nikLength = 16

// validProvinceCodes lists the assigned province codes for the leading two
// digits of a NIK.
var validProvinceCodes = map[string]bool{
	"11": true, "12": true, "13": true, "14": true, "15": true,
	"16": true, "17": true, "18": true, "19": true, "21": true,
	"31": true, "32": true, "33": true, "34": true, "35": true,
	"36": true, "51": true, "52": true, "53": true,
	"61": true, "62": true, "63": true, "64": true, "65": true,
	"71": true, "72": true, "73": true, "74": true, "75": true, "76": true,
	"81": true, "82": true, "91": true, "92": true, "94": true,
}

// ParseNationalID validates a raw national ID string. Purely local: no I/O.
//
// Errors: CodeInvalidInput when the value is empty, not 16 digits, contains
// non-numeric characters, or starts with an unassigned province code.
func ParseNationalID(s string) (NationalID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "national id cannot be empty")
	}
	if len(s) != nikLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "national id must be 16 digits")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "national id must be numeric")
		}
	}
	if !validProvinceCodes[s[:2]] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "national id has unknown province code")
	}
	return NationalID(s), nil
}

// String returns the raw value. Callers must not log or persist it.
func (n NationalID) String() string { return string(n) }

// ProvinceCode returns the leading two digits.
func (n NationalID) ProvinceCode() string {
	if len(n) < 2 {
		return ""
	}
	return string(n[:2])
}
