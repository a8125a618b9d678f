package batch

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/authz"
	"github.com/creditledger-xyz/go-creditledger/cerrors"
	"github.com/creditledger-xyz/go-creditledger/vintage"
)

const (
	testVintage = vintage.Ref("VCS-191/2019")
	serial100   = "AAAAAAAAAAAAAAAAAA000000000001-AAAAAAAAAAAAAAAAAA000000000100"
	serial60    = "AAAAAAAAAAAAAAAAAA000000000001-AAAAAAAAAAAAAAAAAA000000000060"
	serial40    = "AAAAAAAAAAAAAAAAAA000000000061-AAAAAAAAAAAAAAAAAA000000000100"
)

var (
	verifier  = authz.NewContext("vera", authz.RoleVerifier)
	tokenizer = authz.NewContext("tom", authz.RoleTokenizer)
	holder    = authz.NewContext("hank")
	stranger  = authz.NewContext("sven")
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	vintages := vintage.NewMemoryRegistry()
	vintages.Register(vintage.Info{Ref: testVintage, Decimals: 18})
	return NewRegistry(vintages)
}

func mintConfirmed(t *testing.T, r *Registry, serialNumber string, quantity uint64) uint64 {
	t.Helper()
	id, err := r.Mint(tokenizer, holder.Caller)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := r.SetData(holder, id, serialNumber, quantity, ""); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := r.ConfirmWithVintage(verifier, id, testVintage); err != nil {
		t.Fatalf("ConfirmWithVintage: %v", err)
	}
	return id
}

func TestMintRequiresTokenizer(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Mint(holder, holder.Caller); !errors.Is(err, cerrors.ErrAuthorization) {
		t.Errorf("Mint without role = %v, want authorization error", err)
	}
}

func TestLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Mint(tokenizer, holder.Caller)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	rec, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != Pending || rec.Quantity != 0 || rec.Serial != "" {
		t.Errorf("fresh batch = %+v, want empty Pending", rec)
	}

	if err := r.SetData(holder, id, serial100, 100, "ipfs://batch-a"); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := r.Reject(verifier, id); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := r.SetToPending(holder, id); err != nil {
		t.Fatalf("SetToPending: %v", err)
	}
	if err := r.ConfirmWithVintage(verifier, id, testVintage); err != nil {
		t.Fatalf("ConfirmWithVintage: %v", err)
	}

	rec, _ = r.Get(id)
	if rec.Status != Confirmed {
		t.Errorf("status = %s, want Confirmed", rec.Status)
	}
	if rec.Vintage != testVintage {
		t.Errorf("vintage = %q, want %q", rec.Vintage, testVintage)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{Pending, Confirmed, true},
		{Pending, Rejected, true},
		{Rejected, Pending, true},
		{Confirmed, DetokenizationRequested, true},
		{Confirmed, RetirementRequested, true},
		{DetokenizationRequested, DetokenizationFinalized, true},
		{DetokenizationRequested, Confirmed, true},
		{RetirementRequested, RetirementFinalized, true},
		{RetirementRequested, Confirmed, true},

		{Pending, Pending, false},
		{Pending, DetokenizationRequested, false},
		{Rejected, Confirmed, false},
		{Confirmed, Pending, false},
		{Confirmed, RetirementFinalized, false},
		{DetokenizationRequested, RetirementFinalized, false},
		{RetirementRequested, DetokenizationFinalized, false},
		{DetokenizationFinalized, Confirmed, false},
		{RetirementFinalized, Confirmed, false},
		{RetirementFinalized, Pending, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestSetDataOnlyWhilePending(t *testing.T) {
	r := newTestRegistry(t)
	id := mintConfirmed(t, r, serial100, 100)
	if err := r.SetData(holder, id, serial100, 50, ""); !errors.Is(err, cerrors.ErrState) {
		t.Errorf("SetData on Confirmed = %v, want state error", err)
	}
}

func TestSetDataAuthorization(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := r.Mint(tokenizer, holder.Caller)
	if err := r.SetData(stranger, id, serial100, 100, ""); !errors.Is(err, cerrors.ErrAuthorization) {
		t.Errorf("SetData by stranger = %v, want authorization error", err)
	}
	if err := r.SetData(verifier, id, serial100, 100, ""); err != nil {
		t.Errorf("SetData by verifier = %v, want nil", err)
	}
}

func TestConfirmValidation(t *testing.T) {
	r := newTestRegistry(t)

	// No vintage set.
	id, _ := r.Mint(tokenizer, holder.Caller)
	r.SetData(holder, id, serial100, 100, "")
	if err := r.Confirm(verifier, id); !errors.Is(err, cerrors.ErrValidation) {
		t.Errorf("Confirm without vintage = %v, want validation error", err)
	}

	// Unknown vintage.
	if err := r.ConfirmWithVintage(verifier, id, "no-such-vintage"); !errors.Is(err, cerrors.ErrNotFound) {
		t.Errorf("Confirm with unknown vintage = %v, want not found", err)
	}

	// Zero quantity.
	id2, _ := r.Mint(tokenizer, holder.Caller)
	if err := r.ConfirmWithVintage(verifier, id2, testVintage); !errors.Is(err, cerrors.ErrValidation) {
		t.Errorf("Confirm with zero quantity = %v, want validation error", err)
	}

	// Quantity disagrees with the serial range.
	id3, _ := r.Mint(tokenizer, holder.Caller)
	r.SetData(holder, id3, serial100, 99, "")
	if err := r.ConfirmWithVintage(verifier, id3, testVintage); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("Confirm with quantity/range mismatch = %v, want consistency error", err)
	}

	// Missing role.
	id4, _ := r.Mint(tokenizer, holder.Caller)
	r.SetData(holder, id4, serial100, 100, "")
	if err := r.ConfirmWithVintage(holder, id4, testVintage); !errors.Is(err, cerrors.ErrAuthorization) {
		t.Errorf("Confirm without role = %v, want authorization error", err)
	}
}

func TestSerialUniqueness(t *testing.T) {
	r := newTestRegistry(t)
	mintConfirmed(t, r, serial100, 100)

	// A second batch with the same serial must not confirm.
	id2, _ := r.Mint(tokenizer, holder.Caller)
	r.SetData(holder, id2, serial100, 100, "")
	if err := r.ConfirmWithVintage(verifier, id2, testVintage); !errors.Is(err, cerrors.ErrConsistency) {
		t.Fatalf("second confirm of claimed serial = %v, want consistency error", err)
	}
}

func TestRejectIsIdempotentOnClaims(t *testing.T) {
	r := newTestRegistry(t)
	mintConfirmed(t, r, serial100, 100)

	// Rejecting a Pending duplicate is idempotent with respect to the
	// claim: it never owned the serial, so the owner's claim survives.
	id2, _ := r.Mint(tokenizer, holder.Caller)
	r.SetData(holder, id2, serial100, 100, "")
	if err := r.Reject(verifier, id2); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	id3, _ := r.Mint(tokenizer, holder.Caller)
	r.SetData(holder, id3, serial100, 100, "")
	if err := r.ConfirmWithVintage(verifier, id3, testVintage); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("claim must survive rejection of a non-owner: %v", err)
	}
}

func TestTransitionForRequestReturnsScaledQuantity(t *testing.T) {
	r := newTestRegistry(t)
	id := mintConfirmed(t, r, serial100, 100)

	scaled, err := r.TransitionForRequest(id, RetirementRequested)
	if err != nil {
		t.Fatalf("TransitionForRequest: %v", err)
	}
	want := new(uint256.Int).Mul(uint256.NewInt(100), scale18())
	if !scaled.Eq(want) {
		t.Errorf("scaled quantity = %s, want %s", scaled.Dec(), want.Dec())
	}

	// Disallowed edge.
	if _, err := r.TransitionForRequest(id, DetokenizationFinalized); !errors.Is(err, cerrors.ErrState) {
		t.Errorf("disallowed edge = %v, want state error", err)
	}
}

func TestSplit(t *testing.T) {
	r := newTestRegistry(t)
	id := mintConfirmed(t, r, serial100, 100)
	if _, err := r.TransitionForRequest(id, RetirementRequested); err != nil {
		t.Fatal(err)
	}

	sibling, err := r.Split(id, serial60, serial40, 40)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	parent, _ := r.Get(id)
	if parent.Quantity != 60 || parent.Serial != serial60 {
		t.Errorf("parent after split = qty %d serial %q", parent.Quantity, parent.Serial)
	}
	if parent.Status != RetirementRequested {
		t.Errorf("parent status = %s, want RetirementRequested", parent.Status)
	}

	sib, err := r.Get(sibling)
	if err != nil {
		t.Fatalf("Get(sibling): %v", err)
	}
	if sib.Quantity != 40 || sib.Serial != serial40 {
		t.Errorf("sibling after split = qty %d serial %q", sib.Quantity, sib.Serial)
	}
	if sib.Status != Confirmed {
		t.Errorf("sibling status = %s, want Confirmed", sib.Status)
	}
	if sib.Holder != parent.Holder || sib.Vintage != parent.Vintage {
		t.Errorf("sibling must share holder and vintage: %+v", sib)
	}

	// Both halves now claim their serials.
	dup, _ := r.Mint(tokenizer, holder.Caller)
	r.SetData(holder, dup, serial40, 40, "")
	if err := r.ConfirmWithVintage(verifier, dup, testVintage); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("confirm of sibling serial = %v, want consistency error", err)
	}
}

func TestSplitRejectsBadSerials(t *testing.T) {
	tests := []struct {
		name      string
		serialA   string
		serialB   string
		remainder uint64
		want      error
	}{
		{"malformed balancing", "bogus", serial40, 40, cerrors.ErrValidation},
		{"malformed remaining", serial60, "bogus", 40, cerrors.ErrValidation},
		{"remainder mismatch", serial60, serial40, 30, cerrors.ErrConsistency},
		{"non-contiguous pair", serial60, "AAAAAAAAAAAAAAAAAA000000000062-AAAAAAAAAAAAAAAAAA000000000100", 39, cerrors.ErrConsistency},
		{"remainder zero", serial60, serial40, 0, cerrors.ErrValidation},
		{"remainder equals quantity", serial60, serial40, 100, cerrors.ErrValidation},
	}

	// Each case gets its own registry so every attempt sees the
	// canonical [1,100] range.
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := newTestRegistry(t)
			id := mintConfirmed(t, reg, serial100, 100)
			if _, err := reg.TransitionForRequest(id, DetokenizationRequested); err != nil {
				t.Fatal(err)
			}
			if _, err := reg.Split(id, tc.serialA, tc.serialB, tc.remainder); !errors.Is(err, tc.want) {
				t.Errorf("Split = %v, want %v", err, tc.want)
			}
		})
	}

	// Split outside a requested status.
	reg := newTestRegistry(t)
	id := mintConfirmed(t, reg, serial100, 100)
	if _, err := reg.Split(id, serial60, serial40, 40); !errors.Is(err, cerrors.ErrState) {
		t.Errorf("Split on Confirmed batch = %v, want state error", err)
	}
}

func TestCheckSplitDoesNotMutate(t *testing.T) {
	r := newTestRegistry(t)
	id := mintConfirmed(t, r, serial100, 100)
	if _, err := r.TransitionForRequest(id, RetirementRequested); err != nil {
		t.Fatal(err)
	}

	if err := r.CheckSplit(id, serial60, serial40, 40); err != nil {
		t.Fatalf("CheckSplit: %v", err)
	}
	rec, _ := r.Get(id)
	if rec.Quantity != 100 || rec.Serial != serial100 {
		t.Errorf("batch changed by CheckSplit: qty %d serial %q", rec.Quantity, rec.Serial)
	}
	if _, err := r.Get(id + 1); !errors.Is(err, cerrors.ErrNotFound) {
		t.Errorf("sibling created by CheckSplit: %v", err)
	}

	// The same validations Split enforces apply.
	if err := r.CheckSplit(id, serial60, serial40, 30); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("CheckSplit remainder mismatch = %v, want consistency error", err)
	}

	// A passing check still leaves the serials unclaimed for Split itself.
	if _, err := r.Split(id, serial60, serial40, 40); err != nil {
		t.Errorf("Split after CheckSplit: %v", err)
	}
}

func TestComments(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := r.Mint(tokenizer, holder.Caller)

	if err := r.AddComment(holder, id, "uploaded registry export"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if err := r.AddComment(verifier, id, "serial checks out"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if err := r.AddComment(stranger, id, "nope"); !errors.Is(err, cerrors.ErrAuthorization) {
		t.Errorf("AddComment by stranger = %v, want authorization error", err)
	}

	rec, _ := r.Get(id)
	if len(rec.Comments) != 2 {
		t.Fatalf("comment count = %d, want 2", len(rec.Comments))
	}
	if rec.Comments[0].Text != "uploaded registry export" || rec.Comments[1].Author != "vera" {
		t.Errorf("comment log out of order: %+v", rec.Comments)
	}
}

func TestRestore(t *testing.T) {
	r := newTestRegistry(t)
	idA := mintConfirmed(t, r, serial100, 100)
	idB, _ := r.Mint(tokenizer, holder.Caller)
	r.SetData(holder, idB, "11111111-1111-1111-1111-111111111111_1-50", 50, "")

	records := r.Records()
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}

	fresh := newTestRegistry(t)
	if err := fresh.Restore(records); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	rec, err := fresh.Get(idA)
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if rec.Status != Confirmed || rec.Quantity != 100 {
		t.Errorf("restored record = %+v", rec)
	}

	// Claim set must be rebuilt: the restored serial stays taken.
	dup, _ := fresh.Mint(tokenizer, holder.Caller)
	fresh.SetData(holder, dup, serial100, 100, "")
	if err := fresh.ConfirmWithVintage(verifier, dup, testVintage); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("confirm of restored serial = %v, want consistency error", err)
	}

	// New ids continue after the restored ones.
	if dup <= idB {
		t.Errorf("restored registry reused id %d", dup)
	}
}

func TestUnknownID(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Get(99); !errors.Is(err, cerrors.ErrNotFound) {
		t.Errorf("Get(99) = %v, want not found", err)
	}
	if err := r.Confirm(verifier, 99); !errors.Is(err, cerrors.ErrNotFound) {
		t.Errorf("Confirm(99) = %v, want not found", err)
	}
}

func scale18() *uint256.Int {
	scale := uint256.NewInt(1)
	for i := 0; i < 18; i++ {
		scale.Mul(scale, uint256.NewInt(10))
	}
	return scale
}
