package serial

import (
	"errors"
	"strings"
	"testing"

	"github.com/creditledger-xyz/go-creditledger/cerrors"
)

const (
	legacySample   = "AAAAAAAAAAAAAAAAAA000000000001-AAAAAAAAAAAAAAAAAA000000000100"
	issuanceSample = "11111111-1111-1111-1111-111111111111_1-100"
)

func TestParseLegacy(t *testing.T) {
	r, err := Parse(legacySample)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", legacySample, err)
	}
	if r.Format != FormatLegacy {
		t.Errorf("Format = %v, want FormatLegacy", r.Format)
	}
	if r.TypeTag != strings.Repeat("A", 18) {
		t.Errorf("TypeTag = %q, want 18 A's", r.TypeTag)
	}
	if r.Start != 1 || r.End != 100 {
		t.Errorf("range = [%d, %d], want [1, 100]", r.Start, r.End)
	}
	if r.Units() != 100 {
		t.Errorf("Units() = %d, want 100", r.Units())
	}
}

func TestParseIssuance(t *testing.T) {
	r, err := Parse(issuanceSample)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", issuanceSample, err)
	}
	if r.Format != FormatIssuance {
		t.Errorf("Format = %v, want FormatIssuance", r.Format)
	}
	if r.IssuanceID != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("IssuanceID = %q", r.IssuanceID)
	}
	if r.Start != 1 || r.End != 100 {
		t.Errorf("range = [%d, %d], want [1, 100]", r.Start, r.End)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		serial string
	}{
		{"empty", ""},
		{"legacy type mismatch", "AAAAAAAAAAAAAAAAAA000000000001-BBBBBBBBBBBBBBBBBB000000000100"},
		{"legacy missing delimiter", "AAAAAAAAAAAAAAAAAA000000000001xAAAAAAAAAAAAAAAAAA000000000100"},
		{"legacy start after end", "AAAAAAAAAAAAAAAAAA000000000100-AAAAAAAAAAAAAAAAAA000000000001"},
		{"legacy non-numeric", "AAAAAAAAAAAAAAAAAA00000000000x-AAAAAAAAAAAAAAAAAA000000000100"},
		{"issuance missing underscore", "11111111-1111-1111-1111-111111111111+1-100"},
		{"issuance id too short", "11111111-1111-1111-111111111111_1-100"},
		{"issuance wrong hyphen count", "1111111111111-1111-1111-111111111111_1-100"},
		{"issuance missing range delimiter", "11111111-1111-1111-1111-111111111111_1100"},
		{"issuance extra range delimiter", "11111111-1111-1111-1111-111111111111_1-10-0"},
		{"issuance start after end", "11111111-1111-1111-1111-111111111111_100-1"},
		{"issuance signed start", "11111111-1111-1111-1111-111111111111_+1-100"},
	}

	for _, tc := range tests {
		if _, err := Parse(tc.serial); !errors.Is(err, cerrors.ErrValidation) {
			t.Errorf("%s: Parse(%q) = %v, want validation error", tc.name, tc.serial, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{
		legacySample,
		issuanceSample,
		"ZZZZZZZZZZZZZZZZZZ000000000042-ZZZZZZZZZZZZZZZZZZ000000000042",
		"abcdefgh-1234-5678-9abc-def012345678_999-1000",
	} {
		r, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if got := r.String(); got != s {
			t.Errorf("render mismatch: got %q, want %q", got, s)
		}
		again, err := Parse(r.String())
		if err != nil {
			t.Fatalf("re-parse of %q error: %v", r.String(), err)
		}
		if again != r {
			t.Errorf("re-parse mismatch: %+v != %+v", again, r)
		}
	}
}

func TestSplitLegacy(t *testing.T) {
	r, err := Parse(legacySample)
	if err != nil {
		t.Fatal(err)
	}
	bal, rem, err := Split(r, 10)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	wantBal := "AAAAAAAAAAAAAAAAAA000000000001-AAAAAAAAAAAAAAAAAA000000000010"
	wantRem := "AAAAAAAAAAAAAAAAAA000000000011-AAAAAAAAAAAAAAAAAA000000000100"
	if bal.String() != wantBal {
		t.Errorf("balancing = %q, want %q", bal.String(), wantBal)
	}
	if rem.String() != wantRem {
		t.Errorf("remaining = %q, want %q", rem.String(), wantRem)
	}
}

func TestSplitIssuance(t *testing.T) {
	r, err := Parse(issuanceSample)
	if err != nil {
		t.Fatal(err)
	}
	bal, rem, err := Split(r, 10)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if got := bal.String(); got != "11111111-1111-1111-1111-111111111111_1-10" {
		t.Errorf("balancing = %q", got)
	}
	if got := rem.String(); got != "11111111-1111-1111-1111-111111111111_11-100" {
		t.Errorf("remaining = %q", got)
	}
}

func TestSplitCoverage(t *testing.T) {
	// Split halves must tile the source with no gap or overlap.
	r, err := Parse(issuanceSample)
	if err != nil {
		t.Fatal(err)
	}
	for amount := uint64(1); amount < r.Units(); amount++ {
		bal, rem, err := Split(r, amount)
		if err != nil {
			t.Fatalf("Split(%d) error: %v", amount, err)
		}
		if bal.Start != r.Start {
			t.Fatalf("Split(%d): balancing starts at %d", amount, bal.Start)
		}
		if rem.End != r.End {
			t.Fatalf("Split(%d): remaining ends at %d", amount, rem.End)
		}
		if bal.End+1 != rem.Start {
			t.Fatalf("Split(%d): gap or overlap at %d/%d", amount, bal.End, rem.Start)
		}
		if bal.Units()+rem.Units() != r.Units() {
			t.Fatalf("Split(%d): units not conserved", amount)
		}
	}
}

func TestSplitBounds(t *testing.T) {
	r, err := Parse(issuanceSample)
	if err != nil {
		t.Fatal(err)
	}
	for _, amount := range []uint64{0, 100, 101} {
		if _, _, err := Split(r, amount); !errors.Is(err, cerrors.ErrValidation) {
			t.Errorf("Split(%d) = %v, want validation error", amount, err)
		}
	}
}

func TestVerifySplit(t *testing.T) {
	parent, _ := Parse(legacySample)
	bal, rem, err := Split(parent, 60)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySplit(parent, bal, rem, 40); err != nil {
		t.Errorf("VerifySplit of a genuine split: %v", err)
	}

	// Wrong remainder.
	if err := VerifySplit(parent, bal, rem, 41); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("wrong remainder: %v, want consistency error", err)
	}

	// Non-contiguous halves.
	gap := rem
	gap.Start++
	if err := VerifySplit(parent, bal, gap, gap.Units()); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("gap: %v, want consistency error", err)
	}

	// Balancing half shifted off the source start.
	shifted := bal
	shifted.Start++
	if err := VerifySplit(parent, shifted, rem, 40); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("shifted start: %v, want consistency error", err)
	}

	// Issuance halves against a legacy parent.
	other, _ := Parse(issuanceSample)
	obal, orem, _ := Split(other, 60)
	if err := VerifySplit(parent, obal, orem, 40); !errors.Is(err, cerrors.ErrConsistency) {
		t.Errorf("format mismatch: %v, want consistency error", err)
	}
}
