package validation

import (
	"fmt"

	dErrors "rollguard/pkg/domain-errors"
)

const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024

	// MaxNotesLength bounds reviewer notes on task resolution.
	MaxNotesLength = 4000

	// MaxAddressComponentLength bounds each raw address component.
	MaxAddressComponentLength = 200

	// MaxNameLength bounds raw name input before scoring.
	MaxNameLength = 256

	// MaxEvidenceBytes bounds the encoded evidence payload on a review task.
	MaxEvidenceBytes = 16 * 1024
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if err := CheckStringLength(fieldName, v, max); err != nil {
			return err
		}
	}
	return nil
}
