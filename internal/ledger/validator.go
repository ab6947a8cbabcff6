package ledger

import (
	"fmt"
)

// ValidateAccount checks the balance identity total == available + held.
// A failure here is a programming defect, not a business rejection.
func ValidateAccount(a Account) error {
	if !a.Total.Equal(a.Available.Add(a.Held)) {
		return fmt.Errorf("client %d: total %s != available %s + held %s",
			a.Client, a.Total, a.Available, a.Held)
	}
	return nil
}

// ValidateAll checks every account in the snapshot and returns the first violation.
func ValidateAll(accounts []Account) error {
	for _, a := range accounts {
		if err := ValidateAccount(a); err != nil {
			return err
		}
	}
	return nil
}
