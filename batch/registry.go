// Package batch implements the registry of discrete certificate batches:
// their lifecycle state machine, the global claimed-serial set enforced at
// confirmation, and range splitting for partially consumed batches.
package batch

import (
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/authz"
	"github.com/creditledger-xyz/go-creditledger/cerrors"
	"github.com/creditledger-xyz/go-creditledger/serial"
	"github.com/creditledger-xyz/go-creditledger/vintage"
)

// Comment is one entry of a batch's ordered comment log.
type Comment struct {
	Author string
	Text   string
	At     time.Time
}

// Record is one batch of certificates. Records are never deleted, only
// status-transitioned; a split adds a sibling record sharing the parent's
// vintage and holder.
type Record struct {
	ID       uint64
	Holder   string
	Serial   string
	Quantity uint64 // whole certificate units
	URI      string
	Vintage  vintage.Ref
	Status   Status

	// Fractionalized marks that the batch's quantity has been minted as
	// fungible supply and the record now backs outstanding tokens.
	Fractionalized bool

	Comments []Comment
}

// Registry owns all batch records and the claimed-serial set. All mutations
// run under one lock; the registry is the single writer for batch state.
type Registry struct {
	mu       sync.Mutex
	vintages vintage.Registry
	batches  map[uint64]*Record
	claimed  map[string]uint64 // serial string -> claiming batch id
	nextID   uint64
}

// NewRegistry creates an empty registry backed by the given vintage lookup.
func NewRegistry(vintages vintage.Registry) *Registry {
	return &Registry{
		vintages: vintages,
		batches:  make(map[uint64]*Record),
		claimed:  make(map[string]uint64),
		nextID:   1,
	}
}

// Mint creates an empty Pending batch owned by owner and returns its id.
// Requires the tokenizer role.
func (r *Registry) Mint(ctx authz.Context, owner string) (uint64, error) {
	if err := ctx.Require(authz.RoleTokenizer); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.batches[id] = &Record{ID: id, Holder: owner, Status: Pending}
	return id, nil
}

// SetData overwrites a Pending batch's serial, quantity, and URI. Permitted
// for the holder or a verifier.
func (r *Registry) SetData(ctx authz.Context, id uint64, serialNumber string, quantity uint64, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := requireHolderOrVerifier(ctx, b); err != nil {
		return err
	}
	if b.Status != Pending {
		return cerrors.Statef("batch %d: set data in status %s", id, b.Status)
	}
	b.Serial = serialNumber
	b.Quantity = quantity
	b.URI = uri
	return nil
}

// AddComment appends to a batch's comment log. Permitted for the holder or
// a verifier.
func (r *Registry) AddComment(ctx authz.Context, id uint64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := requireHolderOrVerifier(ctx, b); err != nil {
		return err
	}
	b.Comments = append(b.Comments, Comment{Author: ctx.Caller, Text: text, At: time.Now().UTC()})
	return nil
}

// Confirm transitions a Pending batch to Confirmed. The batch's vintage
// must already be set; see ConfirmWithVintage to supply it atomically.
func (r *Registry) Confirm(ctx authz.Context, id uint64) error {
	return r.confirm(ctx, id, "")
}

// ConfirmWithVintage sets the batch's vintage and confirms it in one step.
func (r *Registry) ConfirmWithVintage(ctx authz.Context, id uint64, ref vintage.Ref) error {
	if ref == "" {
		return cerrors.Validationf("batch %d: empty vintage reference", id)
	}
	return r.confirm(ctx, id, ref)
}

func (r *Registry) confirm(ctx authz.Context, id uint64, ref vintage.Ref) error {
	if err := ctx.Require(authz.RoleVerifier); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !CanTransition(b.Status, Confirmed) {
		return cerrors.Statef("batch %d: confirm in status %s", id, b.Status)
	}
	if ref == "" {
		ref = b.Vintage
	} else if b.Vintage != "" && b.Vintage != ref {
		return cerrors.Statef("batch %d: vintage already set to %q", id, b.Vintage)
	}
	if ref == "" {
		return cerrors.Validationf("batch %d: no vintage reference set", id)
	}
	if !r.vintages.Exists(ref) {
		return cerrors.NotFoundf("vintage %q", ref)
	}
	if b.Quantity == 0 {
		return cerrors.Validationf("batch %d: zero quantity", id)
	}
	rng, err := serial.Parse(b.Serial)
	if err != nil {
		return err
	}
	// The serial range and the tracked quantity must denote the same
	// number of physical units, or splits desynchronize the two.
	if rng.Units() != b.Quantity {
		return cerrors.Consistencyf("batch %d: serial covers %d units, quantity is %d", id, rng.Units(), b.Quantity)
	}
	if owner, taken := r.claimed[b.Serial]; taken && owner != id {
		return cerrors.Consistencyf("batch %d: serial already claimed by batch %d", id, owner)
	}
	r.claimed[b.Serial] = id
	b.Vintage = ref
	b.Status = Confirmed
	return nil
}

// Reject transitions a Pending batch to Rejected and releases its serial
// claim if one exists.
func (r *Registry) Reject(ctx authz.Context, id uint64) error {
	if err := ctx.Require(authz.RoleVerifier); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !CanTransition(b.Status, Rejected) {
		return cerrors.Statef("batch %d: reject in status %s", id, b.Status)
	}
	if owner, taken := r.claimed[b.Serial]; taken && owner == id {
		delete(r.claimed, b.Serial)
	}
	b.Status = Rejected
	return nil
}

// SetToPending resubmits a Rejected batch as Pending. Permitted for the
// holder or a verifier.
func (r *Registry) SetToPending(ctx authz.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := requireHolderOrVerifier(ctx, b); err != nil {
		return err
	}
	if !CanTransition(b.Status, Pending) {
		return cerrors.Statef("batch %d: set to pending in status %s", id, b.Status)
	}
	b.Status = Pending
	return nil
}

// TransitionForRequest applies one request-protocol edge (Confirmed to a
// Requested status, or a Requested status to Confirmed or its Finalized
// status) and returns the batch's scaled quantity so the caller can
// accumulate totals. Invoked only by the escrow coordinator.
func (r *Registry) TransitionForRequest(id uint64, next Status) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, next) {
		return nil, cerrors.Statef("batch %d: transition %s -> %s", id, b.Status, next)
	}
	scaled, err := r.scaledQuantity(b)
	if err != nil {
		return nil, err
	}
	b.Status = next
	return scaled, nil
}

// Reassign moves a batch record to a new holder. Invoked only by the escrow
// coordinator when a detokenization finalizes.
func (r *Registry) Reassign(id uint64, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	b.Holder = holder
	return nil
}

// MarkFractionalized records that a Confirmed batch now backs minted
// fungible supply. Invoked only by the escrow coordinator.
func (r *Registry) MarkFractionalized(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	if b.Status != Confirmed {
		return cerrors.Statef("batch %d: fractionalize in status %s", id, b.Status)
	}
	if b.Fractionalized {
		return cerrors.Statef("batch %d: already fractionalized", id)
	}
	b.Fractionalized = true
	return nil
}

// CheckSplit runs every validation Split performs without mutating
// anything, so callers can fail fast before taking irreversible steps.
func (r *Registry) CheckSplit(id uint64, serialA, serialB string, remainder uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	return r.checkSplit(b, serialA, serialB, remainder)
}

func (r *Registry) checkSplit(b *Record, serialA, serialB string, remainder uint64) error {
	if b.Status != DetokenizationRequested && b.Status != RetirementRequested {
		return cerrors.Statef("batch %d: split in status %s", b.ID, b.Status)
	}
	if remainder == 0 || remainder >= b.Quantity {
		return cerrors.Validationf("batch %d: split remainder %d out of range (0, %d)", b.ID, remainder, b.Quantity)
	}

	parent, err := serial.Parse(b.Serial)
	if err != nil {
		return err
	}
	balancing, err := serial.Parse(serialA)
	if err != nil {
		return err
	}
	remaining, err := serial.Parse(serialB)
	if err != nil {
		return err
	}
	if err := serial.VerifySplit(parent, balancing, remaining, remainder); err != nil {
		return err
	}

	if owner, taken := r.claimed[serialA]; taken && owner != b.ID {
		return cerrors.Consistencyf("split serial %q already claimed by batch %d", serialA, owner)
	}
	if owner, taken := r.claimed[serialB]; taken {
		return cerrors.Consistencyf("split serial %q already claimed by batch %d", serialB, owner)
	}
	return nil
}

// Split divides a batch locked under a request. The original keeps the
// balancing portion (serial serialA, quantity reduced by remainder); a new
// sibling holding the remaining portion (serial serialB, quantity =
// remainder) is created directly in Confirmed status, outside the request.
// The serials must reconstruct the source range exactly.
func (r *Registry) Split(id uint64, serialA, serialB string, remainder uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	if err := r.checkSplit(b, serialA, serialB, remainder); err != nil {
		return 0, err
	}

	delete(r.claimed, b.Serial)
	b.Serial = serialA
	b.Quantity -= remainder
	r.claimed[serialA] = id

	sibling := &Record{
		ID:             r.nextID,
		Holder:         b.Holder,
		Serial:         serialB,
		Quantity:       remainder,
		URI:            b.URI,
		Vintage:        b.Vintage,
		Status:         Confirmed,
		Fractionalized: b.Fractionalized,
	}
	r.nextID++
	r.batches[sibling.ID] = sibling
	r.claimed[serialB] = sibling.ID
	return sibling.ID, nil
}

// Get returns a copy of a batch record.
func (r *Registry) Get(id uint64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return Record{}, err
	}
	return copyRecord(b), nil
}

// ScaledQuantity returns quantity x 10^decimals for a batch.
func (r *Registry) ScaledQuantity(id uint64) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.scaledQuantity(b)
}

// ActiveScaledBacking sums quantity x scale over all fractionalized batches
// of the vintage whose status still backs outstanding supply. This is the
// right-hand side of the conservation invariant.
func (r *Registry) ActiveScaledBacking(ref vintage.Ref) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := new(uint256.Int)
	for _, b := range r.batches {
		if b.Vintage != ref || !b.Fractionalized || !b.Status.Active() {
			continue
		}
		scaled, err := r.scaledQuantity(b)
		if err != nil {
			return nil, err
		}
		total.Add(total, scaled)
	}
	return total, nil
}

// Records returns copies of all records, for persistence.
func (r *Registry) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.batches))
	for id := uint64(1); id < r.nextID; id++ {
		if b, ok := r.batches[id]; ok {
			out = append(out, copyRecord(b))
		}
	}
	return out
}

// Restore replaces the registry's contents with previously persisted
// records, rebuilding the claimed-serial set.
func (r *Registry) Restore(records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batches := make(map[uint64]*Record, len(records))
	claimed := make(map[string]uint64)
	next := uint64(1)
	for i := range records {
		rec := copyRecord(&records[i])
		if _, dup := batches[rec.ID]; dup {
			return cerrors.Consistencyf("restore: duplicate batch id %d", rec.ID)
		}
		// Confirmation claims a serial and nothing after rejection
		// releases it, so every non-draft record claims its serial.
		if rec.Status != Pending && rec.Status != Rejected {
			if owner, taken := claimed[rec.Serial]; taken {
				return cerrors.Consistencyf("restore: serial %q claimed by batches %d and %d", rec.Serial, owner, rec.ID)
			}
			claimed[rec.Serial] = rec.ID
		}
		batches[rec.ID] = &rec
		if rec.ID >= next {
			next = rec.ID + 1
		}
	}
	r.batches = batches
	r.claimed = claimed
	r.nextID = next
	return nil
}

func (r *Registry) lookup(id uint64) (*Record, error) {
	b, ok := r.batches[id]
	if !ok {
		return nil, cerrors.NotFoundf("batch %d", id)
	}
	return b, nil
}

func (r *Registry) scaledQuantity(b *Record) (*uint256.Int, error) {
	info, err := r.vintages.Get(b.Vintage)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Mul(uint256.NewInt(b.Quantity), info.Scale()), nil
}

func requireHolderOrVerifier(ctx authz.Context, b *Record) error {
	if ctx.Caller == b.Holder || ctx.Has(authz.RoleVerifier) {
		return nil
	}
	return cerrors.Authorizationf("caller %q is neither holder of batch %d nor a verifier", ctx.Caller, b.ID)
}

func copyRecord(b *Record) Record {
	rec := *b
	rec.Comments = make([]Comment, len(b.Comments))
	copy(rec.Comments, b.Comments)
	return rec
}
