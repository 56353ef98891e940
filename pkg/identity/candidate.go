package identity

import (
	"sort"
	"strings"

	"github.com/priyanshu8007b/bitespeed/pkg/normalizers"
)

// Candidate is one submitted (email, phone) pair. A blank value means absent; any
// other value is matched exactly as given.
type Candidate struct {
	Email string
	Phone string
}

// IsEmpty reports whether neither value carries anything but whitespace.
func (c Candidate) IsEmpty() bool {
	return isBlank(c.Email) && isBlank(c.Phone)
}

// LockKeys names the values this candidate can match on, sorted so every caller locks in one order.
func (c Candidate) LockKeys() []string {
	var keys []string
	if c.Email != "" {
		keys = append(keys, "email:"+c.Email)
	}
	if c.Phone != "" {
		keys = append(keys, "phone:"+c.Phone)
	}
	sort.Strings(keys)
	return keys
}

// normalize runs the configured chains, which are empty unless configured, and
// drops blank values.
func (c Candidate) normalize(email, phone normalizers.Chain) Candidate {
	n := Candidate{
		Email: email.Apply(c.Email),
		Phone: phone.Apply(c.Phone),
	}
	if isBlank(n.Email) {
		n.Email = ""
	}
	if isBlank(n.Phone) {
		n.Phone = ""
	}
	return n
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
