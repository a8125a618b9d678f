// Package authz provides the explicit authorization context passed into
// every privileged ledger operation. Roles are resolved once per call from
// the external role authority; operations check the resolved set and never
// consult the authority directly.
package authz

import (
	"github.com/creditledger-xyz/go-creditledger/cerrors"
)

// Role names a capability gate.
type Role string

const (
	// RoleVerifier may confirm and reject pending batches.
	RoleVerifier Role = "verifier"
	// RoleTokenizer may mint batch records and fractionalize confirmed
	// batches into fungible supply.
	RoleTokenizer Role = "tokenizer"
	// RoleDetokenizer may finalize or revert detokenization requests.
	RoleDetokenizer Role = "detokenizer"
	// RoleRetirer may finalize or revert retirement requests.
	RoleRetirer Role = "retirer"
)

// Authority is the external role registry.
type Authority interface {
	HasRole(role Role, caller string) bool
}

// Context carries a caller identity and its resolved role set.
type Context struct {
	Caller string
	roles  map[Role]bool
}

// Resolve builds a Context for caller by querying the authority for each
// known role.
func Resolve(auth Authority, caller string) Context {
	roles := make(map[Role]bool)
	for _, r := range []Role{RoleVerifier, RoleTokenizer, RoleDetokenizer, RoleRetirer} {
		if auth.HasRole(r, caller) {
			roles[r] = true
		}
	}
	return Context{Caller: caller, roles: roles}
}

// NewContext builds a Context with an explicit role set, bypassing any
// authority. Intended for wiring and tests.
func NewContext(caller string, roles ...Role) Context {
	set := make(map[Role]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return Context{Caller: caller, roles: set}
}

// Has reports whether the context carries the role.
func (c Context) Has(role Role) bool {
	return c.roles[role]
}

// Require returns an authorization error unless the context carries the
// role.
func (c Context) Require(role Role) error {
	if !c.roles[role] {
		return cerrors.Authorizationf("caller %q lacks role %q", c.Caller, role)
	}
	return nil
}

// StaticAuthority is a fixed caller-to-roles table.
type StaticAuthority map[string][]Role

// HasRole implements Authority.
func (a StaticAuthority) HasRole(role Role, caller string) bool {
	for _, r := range a[caller] {
		if r == role {
			return true
		}
	}
	return false
}
