package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true},
	StatusConfirmed: {},
}

// ParseStatus accepts only the closed set of delivery statuses, case-sensitive.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validNext[st]; !ok {
		return "", fmt.Errorf("unknown delivery status %q", s)
	}
	return st, nil
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// LedgerCode is the contract's status encoding: Confirmed -> 1, anything else -> 0.
func (s Status) LedgerCode() uint8 {
	if s == StatusConfirmed {
		return 1
	}
	return 0
}
