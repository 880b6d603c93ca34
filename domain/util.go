package domain

import (
	"fmt"
	"strconv"

	"github.com/luca-patrignani/popcore/identity"
)

func mismatch(what string, expected, got fmt.Stringer) error {
	return fmt.Errorf("%w: %s: expected %s, got %s", identity.ErrInvalidMessageID, what, expected, got)
}

func itoa(i int64) string { return strconv.FormatInt(i, 10) }

// sameKeys compares two key lists as sets.
func sameKeys(a, b []identity.PublicKey) bool {
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k.String()] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, k := range b {
		if _, ok := set[k.String()]; !ok {
			return false
		}
		other[k.String()] = struct{}{}
	}
	return len(set) == len(other)
}
