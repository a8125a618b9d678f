package authz

import (
	"errors"
	"testing"

	"github.com/creditledger-xyz/go-creditledger/cerrors"
)

func TestContextRequire(t *testing.T) {
	ctx := NewContext("vera", RoleVerifier, RoleTokenizer)
	if err := ctx.Require(RoleVerifier); err != nil {
		t.Errorf("Require(verifier) = %v, want nil", err)
	}
	if err := ctx.Require(RoleRetirer); !errors.Is(err, cerrors.ErrAuthorization) {
		t.Errorf("Require(retirer) = %v, want authorization error", err)
	}
	if !ctx.Has(RoleTokenizer) || ctx.Has(RoleDetokenizer) {
		t.Error("role membership mismatch")
	}
}

func TestStaticAuthorityResolve(t *testing.T) {
	auth := StaticAuthority{
		"vera": {RoleVerifier},
		"tom":  {RoleTokenizer},
	}
	ctx := Resolve(auth, "vera")
	if ctx.Caller != "vera" || !ctx.Has(RoleVerifier) {
		t.Errorf("resolved context = %+v", ctx)
	}
	stranger := Resolve(auth, "nobody")
	if stranger.Has(RoleVerifier) || stranger.Has(RoleTokenizer) {
		t.Error("unknown caller resolved with roles")
	}
}
