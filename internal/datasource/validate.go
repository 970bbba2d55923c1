package datasource

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

// ValidateAddress checks that value is a non-empty hex address.
func ValidateAddress(field, value string) error {
	v := strings.TrimSpace(value)
	if v == "" {
		return &resilience.ValidationError{Field: field, Value: value, Reason: "must not be empty"}
	}
	if !common.IsHexAddress(v) {
		return &resilience.ValidationError{Field: field, Value: value, Reason: "not a hex address"}
	}
	return nil
}

func validatePage(page, offset int) error {
	if page < 1 {
		return &resilience.ValidationError{Field: "page", Value: itoa(page), Reason: "must be >= 1"}
	}
	if offset < 1 || offset > 10000 {
		return &resilience.ValidationError{Field: "offset", Value: itoa(offset), Reason: "must be between 1 and 10000"}
	}
	return nil
}

func validateAmount(amount string) error {
	v := strings.TrimSpace(amount)
	if v == "" {
		return &resilience.ValidationError{Field: "amount", Value: amount, Reason: "must not be empty"}
	}
	if _, ok := parseRaw(v); !ok {
		return &resilience.ValidationError{Field: "amount", Value: amount, Reason: "must be a positive integer in base units"}
	}
	return nil
}

// all returns the first failing check.
func all(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
