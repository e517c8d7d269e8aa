package enums

import "fmt"

// CreditLogKind maps to the credit_log_kind enum in Postgres.
type CreditLogKind string

const (
	CreditLogKindCharge CreditLogKind = "charge"
	CreditLogKindUse    CreditLogKind = "use"
	CreditLogKindRefund CreditLogKind = "refund"
)

var validCreditLogKinds = []CreditLogKind{
	CreditLogKindCharge,
	CreditLogKindUse,
	CreditLogKindRefund,
}

// IsValid reports whether the value matches the canonical credit_log_kind enum.
func (k CreditLogKind) IsValid() bool {
	for _, candidate := range validCreditLogKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseCreditLogKind converts raw input into CreditLogKind.
func ParseCreditLogKind(value string) (CreditLogKind, error) {
	for _, candidate := range validCreditLogKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit log kind %q", value)
}
