// Package vintage defines the project-vintage collaborator consumed by the
// ledger core. Each fungible token is scoped to exactly one vintage; the
// registry supplies the per-vintage fungible precision and the
// total-quantity cap that bounds deposits.
package vintage

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/cerrors"
)

// Ref identifies a vintage in the external project registry.
type Ref string

// Info describes one vintage.
type Info struct {
	Ref      Ref
	Decimals uint8 // fungible decimals; one whole certificate unit = 10^Decimals base units

	// Precision is the minimal fungible amount a request may be
	// denominated in, in base units. Zero means whole-unit precision
	// (10^Decimals).
	Precision *uint256.Int

	// TotalCap is the deposit cap in whole certificate units. Zero means
	// uncapped.
	TotalCap uint64
}

// Scale returns 10^Decimals, the base-unit value of one certificate unit.
func (i Info) Scale() *uint256.Int {
	scale := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for d := uint8(0); d < i.Decimals; d++ {
		scale.Mul(scale, ten)
	}
	return scale
}

// MinPrecision returns the minimal request denomination in base units.
func (i Info) MinPrecision() *uint256.Int {
	if i.Precision != nil && !i.Precision.IsZero() {
		return new(uint256.Int).Set(i.Precision)
	}
	return i.Scale()
}

// Registry is the external vintage lookup.
type Registry interface {
	Exists(ref Ref) bool
	Get(ref Ref) (Info, error)
}

// MemoryRegistry is an in-process Registry backed by a map.
type MemoryRegistry struct {
	mu       sync.RWMutex
	vintages map[Ref]Info
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{vintages: make(map[Ref]Info)}
}

// Register adds or replaces a vintage.
func (r *MemoryRegistry) Register(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vintages[info.Ref] = info
}

// Exists implements Registry.
func (r *MemoryRegistry) Exists(ref Ref) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.vintages[ref]
	return ok
}

// Get implements Registry.
func (r *MemoryRegistry) Get(ref Ref) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.vintages[ref]
	if !ok {
		return Info{}, cerrors.NotFoundf("vintage %q", ref)
	}
	return info, nil
}
