// Package role defines the closed set of workflow participants and the
// policy of which of them must verify a circulated draft.
package role

import "fmt"

// Role identifies a workflow participant. Values match the user_role enum
// in the database and on the wire.
type Role string

const (
	Procurement   Role = "PIC_PROCUREMENT"
	Legal         Role = "PIC_LEGAL"
	Tax           Role = "PIC_TAX"
	OfficeManager Role = "PIC_OFFICE_MANAGER"
)

// RequiredVerifiers lists the roles whose approval is necessary and
// sufficient for an agreement to become fully approved. Legal participates
// in the earlier review stage only. Gating is by coverage of this set, not
// by submission order.
func RequiredVerifiers() []Role {
	return []Role{Procurement, Tax, OfficeManager}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case Procurement, Legal, Tax, OfficeManager:
		return true
	}
	return false
}

// IsRequiredVerifier reports whether r belongs to the required-verifier set.
func (r Role) IsRequiredVerifier() bool {
	for _, v := range RequiredVerifiers() {
		if r == v {
			return true
		}
	}
	return false
}

// Parse converts a wire value into a Role.
func Parse(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("role: unknown role %q", s)
	}
	return r, nil
}

func (r Role) String() string {
	return string(r)
}
