package enums

import "fmt"

// RFQStatus maps to the rfq_status enum in Postgres.
type RFQStatus string

const (
	RFQStatusOpen       RFQStatus = "open"
	RFQStatusInProgress RFQStatus = "in_progress"
	RFQStatusClosed     RFQStatus = "closed"
	RFQStatusCancelled  RFQStatus = "cancelled"
)

var validRFQStatuses = []RFQStatus{
	RFQStatusOpen,
	RFQStatusInProgress,
	RFQStatusClosed,
	RFQStatusCancelled,
}

func (s RFQStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical rfq_status enum.
func (s RFQStatus) IsValid() bool {
	for _, candidate := range validRFQStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRFQStatus converts raw input into RFQStatus.
func ParseRFQStatus(value string) (RFQStatus, error) {
	for _, candidate := range validRFQStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rfq status %q", value)
}
