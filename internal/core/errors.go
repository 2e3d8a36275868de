package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("transaction not found")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrAmountOutOfRange   = errors.New("amount out of range")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidDateRange   = errors.New("start date must not be after end date")
	ErrMissingDateRange   = errors.New("start and end dates are required")
	ErrInvalidMonth       = errors.New("invalid month, expected YYYY-MM")
	ErrEmptyName          = errors.New("empty name")
	ErrMissingUser        = errors.New("missing user")
	ErrGenerationFailed   = errors.New("report generation failed")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrStorageUnavailable = errors.New("failed to load transactions")
)

// ValidationError carries the offending field names mapped to the rule that
// rejected them.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
