// Package serial implements parsing, rendering, and splitting of the
// textual serial-number encodings that identify contiguous blocks of
// certificate units in the physical registry.
//
// Two encodings exist:
//
//   - Legacy: <TYPE><NUM>-<TYPE><NUM>, fixed-width. The TYPE field is 18
//     characters and must be identical between halves; the NUM fields are
//     12 decimal digits, zero-padded. A serial is dispatched to this
//     encoding when its total length is exactly 61.
//   - Issuance: <issuanceId>_<start>-<end>, where issuanceId is a
//     36-character string containing exactly 4 hyphens (shape check only)
//     and start/end are decimal integers.
//
// Both encodings denote the inclusive unit range [Start, End]. Parsing and
// rendering round-trip exactly; splitting re-renders both halves in the
// source encoding.
package serial

import (
	"strconv"
	"strings"

	"github.com/creditledger-xyz/go-creditledger/cerrors"
)

// Format tags the encoding a Range was parsed from.
type Format int

const (
	// FormatLegacy is the fixed-width <TYPE><NUM>-<TYPE><NUM> encoding.
	FormatLegacy Format = iota
	// FormatIssuance is the <issuanceId>_<start>-<end> encoding.
	FormatIssuance
)

// Fixed widths of the legacy encoding.
const (
	legacyTypeWidth = 18
	legacyNumWidth  = 12
	legacyHalfWidth = legacyTypeWidth + legacyNumWidth
	legacyFullWidth = legacyHalfWidth + 1 + legacyHalfWidth
)

const (
	issuanceIDLength  = 36
	issuanceIDHyphens = 4
)

// Range is a contiguous, inclusive unit range with its encoding identity.
// TypeTag is set only for FormatLegacy; IssuanceID only for FormatIssuance.
// Ranges are constructed through Parse, never by slicing serial strings.
type Range struct {
	Format     Format
	TypeTag    string
	IssuanceID string
	Start      uint64
	End        uint64
}

// Units returns the number of certificate units the range covers.
func (r Range) Units() uint64 {
	return r.End - r.Start + 1
}

// String renders the range back into its source encoding.
func (r Range) String() string {
	if r.Format == FormatLegacy {
		var b strings.Builder
		b.WriteString(r.TypeTag)
		b.WriteString(padNum(r.Start))
		b.WriteByte('-')
		b.WriteString(r.TypeTag)
		b.WriteString(padNum(r.End))
		return b.String()
	}
	return r.IssuanceID + "_" + strconv.FormatUint(r.Start, 10) + "-" + strconv.FormatUint(r.End, 10)
}

func padNum(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) >= legacyNumWidth {
		return s
	}
	return strings.Repeat("0", legacyNumWidth-len(s)) + s
}

// Parse decodes a serial string. Dispatch is by exact length: a string of
// the legacy combined width parses as legacy, anything else as issuance.
func Parse(s string) (Range, error) {
	if len(s) == legacyFullWidth {
		return parseLegacy(s)
	}
	return parseIssuance(s)
}

func parseLegacy(s string) (Range, error) {
	if s[legacyHalfWidth] != '-' {
		return Range{}, cerrors.Validationf("legacy serial %q: missing range delimiter", s)
	}
	typeA := s[:legacyTypeWidth]
	numA := s[legacyTypeWidth:legacyHalfWidth]
	typeB := s[legacyHalfWidth+1 : legacyHalfWidth+1+legacyTypeWidth]
	numB := s[legacyHalfWidth+1+legacyTypeWidth:]

	if typeA != typeB {
		return Range{}, cerrors.Validationf("legacy serial %q: type fields differ", s)
	}
	start, err := parseDigits(numA)
	if err != nil {
		return Range{}, cerrors.Validationf("legacy serial %q: bad start field: %v", s, err)
	}
	end, err := parseDigits(numB)
	if err != nil {
		return Range{}, cerrors.Validationf("legacy serial %q: bad end field: %v", s, err)
	}
	if start > end {
		return Range{}, cerrors.Validationf("legacy serial %q: start exceeds end", s)
	}
	return Range{Format: FormatLegacy, TypeTag: typeA, Start: start, End: end}, nil
}

func parseIssuance(s string) (Range, error) {
	id, rest, ok := strings.Cut(s, "_")
	if !ok {
		return Range{}, cerrors.Validationf("serial %q: missing issuance delimiter", s)
	}
	if len(id) != issuanceIDLength {
		return Range{}, cerrors.Validationf("serial %q: issuance id must be %d characters", s, issuanceIDLength)
	}
	if strings.Count(id, "-") != issuanceIDHyphens {
		return Range{}, cerrors.Validationf("serial %q: issuance id must contain exactly %d hyphens", s, issuanceIDHyphens)
	}
	startField, endField, ok := strings.Cut(rest, "-")
	if !ok || strings.Contains(endField, "-") {
		return Range{}, cerrors.Validationf("serial %q: range must be <start>-<end>", s)
	}
	start, err := parseDigits(startField)
	if err != nil {
		return Range{}, cerrors.Validationf("serial %q: bad start field: %v", s, err)
	}
	end, err := parseDigits(endField)
	if err != nil {
		return Range{}, cerrors.Validationf("serial %q: bad end field: %v", s, err)
	}
	if start > end {
		return Range{}, cerrors.Validationf("serial %q: start exceeds end", s)
	}
	return Range{Format: FormatIssuance, IssuanceID: id, Start: start, End: end}, nil
}

// parseDigits parses a non-empty all-digit decimal field. strconv is not
// used directly at call sites because it tolerates shapes ("+1") that the
// registry never emits.
func parseDigits(s string) (uint64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseUint(s, 10, 64)
}

// Split divides a range after the first amount units. The balancing half
// covers [Start, Start+amount-1] and the remaining half covers
// [Start+amount, End]; both keep the source encoding identity. amount must
// satisfy 0 < amount < Units().
func Split(r Range, amount uint64) (balancing, remaining Range, err error) {
	if amount == 0 || amount >= r.Units() {
		return Range{}, Range{}, cerrors.Validationf(
			"split amount %d out of range (0, %d)", amount, r.Units())
	}
	balancing = r
	balancing.End = r.Start + amount - 1
	remaining = r
	remaining.Start = r.Start + amount
	return balancing, remaining, nil
}

// VerifySplit checks that balancing and remaining reconstruct parent as a
// contiguous, non-overlapping pair whose remaining half covers exactly
// remainder units. This is the consistency gate between ledger quantities
// and physical-registry identity.
func VerifySplit(parent, balancing, remaining Range, remainder uint64) error {
	if balancing.Format != parent.Format || remaining.Format != parent.Format {
		return cerrors.Consistencyf("split halves use a different encoding than the source")
	}
	if balancing.TypeTag != parent.TypeTag || remaining.TypeTag != parent.TypeTag {
		return cerrors.Consistencyf("split halves change the legacy type field")
	}
	if balancing.IssuanceID != parent.IssuanceID || remaining.IssuanceID != parent.IssuanceID {
		return cerrors.Consistencyf("split halves change the issuance id")
	}
	if balancing.Start != parent.Start {
		return cerrors.Consistencyf("balancing half does not start at %d", parent.Start)
	}
	if remaining.End != parent.End {
		return cerrors.Consistencyf("remaining half does not end at %d", parent.End)
	}
	if balancing.End+1 != remaining.Start {
		return cerrors.Consistencyf("split halves are not contiguous at unit %d", balancing.End)
	}
	if remaining.Units() != remainder {
		return cerrors.Consistencyf("remaining half covers %d units, want %d", remaining.Units(), remainder)
	}
	return nil
}
