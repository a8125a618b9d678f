// Package escrow implements the request/finalize/revert protocol that
// mediates detokenization and retirement. The coordinator validates
// admission rules, locks the requested amount in custody, drives the batch
// state machine, and orchestrates range splitting on finalize. It is the
// single point of serialization for all value-moving operations.
package escrow

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/authz"
	"github.com/creditledger-xyz/go-creditledger/batch"
	"github.com/creditledger-xyz/go-creditledger/cerrors"
	"github.com/creditledger-xyz/go-creditledger/certificate"
	"github.com/creditledger-xyz/go-creditledger/journal"
	"github.com/creditledger-xyz/go-creditledger/ledger"
	"github.com/creditledger-xyz/go-creditledger/vintage"
)

// Kind distinguishes the two escrow flows.
type Kind int

const (
	// Detokenization burns fungible tokens to re-extract discrete batch
	// records.
	Detokenization Kind = iota
	// Retirement burns fungible tokens permanently against a certificate
	// receipt.
	Retirement
)

func (k Kind) String() string {
	if k == Retirement {
		return "retirement"
	}
	return "detokenization"
}

// requestedStatus returns the batch status a request of this kind locks its
// batches into.
func (k Kind) requestedStatus() batch.Status {
	if k == Retirement {
		return batch.RetirementRequested
	}
	return batch.DetokenizationRequested
}

// finalizedStatus returns the terminal batch status for this kind.
func (k Kind) finalizedStatus() batch.Status {
	if k == Retirement {
		return batch.RetirementFinalized
	}
	return batch.DetokenizationFinalized
}

// role returns the role allowed to finalize or revert this kind.
func (k Kind) role() authz.Role {
	if k == Retirement {
		return authz.RoleRetirer
	}
	return authz.RoleDetokenizer
}

// Receipt is the retirement metadata carried by a retirement request.
type Receipt struct {
	Beneficiary            string
	BeneficiaryMessage     string
	RetirementMessage      string
	ConsumptionPeriodStart time.Time
	ConsumptionPeriodEnd   time.Time
}

// Request is one escrow request. A request terminates exactly once, through
// Finalize or Revert, and is never reusable afterward.
type Request struct {
	ID        string
	Kind      Kind
	Requester string
	Amount    *uint256.Int // base units held in custody
	BatchIDs  []uint64
	Vintage   vintage.Ref
	Receipt   *Receipt
	Consumed  bool

	// RetirementEventID is the certificate issuer's event id, set when a
	// retirement finalizes.
	RetirementEventID string
}

// CustodyAccount is the ledger account the coordinator escrows funds under.
const CustodyAccount = "escrow:custody"

// Coordinator owns all escrow requests.
type Coordinator struct {
	mu       sync.Mutex
	batches  *batch.Registry
	ledger   *ledger.Ledger
	vintages vintage.Registry
	certs    certificate.Issuer
	log      *journal.Journal
	requests map[string]*Request
}

// NewCoordinator wires a coordinator to its collaborators. The coordinator
// keeps its journal in memory; consumers stream or persist entries through
// Journal().
func NewCoordinator(batches *batch.Registry, l *ledger.Ledger, vintages vintage.Registry, certs certificate.Issuer) *Coordinator {
	return &Coordinator{
		batches:  batches,
		ledger:   l,
		vintages: vintages,
		certs:    certs,
		log:      journal.New(nil),
		requests: make(map[string]*Request),
	}
}

// Fractionalize mints a Confirmed batch's quantity as fungible supply to
// its holder, subject to the vintage's deposit cap. Requires the tokenizer
// role. A batch can be fractionalized once.
func (c *Coordinator) Fractionalize(ctx authz.Context, id uint64) error {
	if err := ctx.Require(authz.RoleTokenizer); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.batches.Get(id)
	if err != nil {
		return err
	}
	if rec.Status != batch.Confirmed {
		return cerrors.Statef("batch %d: fractionalize in status %s", id, rec.Status)
	}
	if rec.Fractionalized {
		return cerrors.Statef("batch %d: already fractionalized", id)
	}
	scaled, err := c.batches.ScaledQuantity(id)
	if err != nil {
		return err
	}
	if err := c.ledger.Mint(rec.Vintage, rec.Holder, scaled); err != nil {
		return err
	}
	if err := c.batches.MarkFractionalized(id); err != nil {
		// Mint succeeded but the mark failed; this cannot happen while
		// the coordinator is the only writer of request-phase state.
		return cerrors.Consistencyf("batch %d: %v after mint", id, err)
	}
	c.log.Append(journal.Entry{
		Type:    journal.Fractionalized,
		Actor:   ctx.Caller,
		Batch:   id,
		Vintage: string(rec.Vintage),
		Amount:  scaled.Dec(),
	})
	return nil
}

// CreateRequest admits a new detokenization or retirement request: it
// validates the amount against the referenced batches, locks the batches in
// their Requested status, pulls the amount into custody, and persists the
// request.
//
// Caller contract: only the last batch in batchIDs is eligible for
// splitting on finalize, so the sum of all batches except the last must be
// strictly below the requested amount. The ordering of batchIDs therefore
// carries meaning and is preserved.
func (c *Coordinator) CreateRequest(ctx authz.Context, kind Kind, amount *uint256.Int, batchIDs []uint64, receipt *Receipt) (string, error) {
	if amount == nil || amount.IsZero() {
		return "", cerrors.Validationf("zero request amount")
	}
	if len(batchIDs) == 0 {
		return "", cerrors.Validationf("empty batch list")
	}
	if kind == Retirement && receipt == nil {
		return "", cerrors.Validationf("retirement request without receipt metadata")
	}
	if kind != Retirement {
		receipt = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Validate everything before mutating anything, so a rejected call
	// leaves the ledger exactly as before.
	seen := make(map[uint64]bool, len(batchIDs))
	var ref vintage.Ref
	total := new(uint256.Int)
	last := new(uint256.Int)
	for _, id := range batchIDs {
		if seen[id] {
			return "", cerrors.Validationf("batch %d listed twice", id)
		}
		seen[id] = true
		rec, err := c.batches.Get(id)
		if err != nil {
			return "", err
		}
		if rec.Status != batch.Confirmed {
			return "", cerrors.Statef("batch %d: request against status %s", id, rec.Status)
		}
		if !rec.Fractionalized {
			return "", cerrors.Statef("batch %d: not fractionalized", id)
		}
		if ref == "" {
			ref = rec.Vintage
		} else if rec.Vintage != ref {
			return "", cerrors.Validationf("batch %d: vintage %q differs from %q", id, rec.Vintage, ref)
		}
		scaled, err := c.batches.ScaledQuantity(id)
		if err != nil {
			return "", err
		}
		total.Add(total, scaled)
		last.Set(scaled)
	}

	info, err := c.vintages.Get(ref)
	if err != nil {
		return "", err
	}
	if !new(uint256.Int).Mod(amount, info.MinPrecision()).IsZero() {
		return "", cerrors.Validationf("amount %s is not a multiple of the vintage precision %s", amount.Dec(), info.MinPrecision().Dec())
	}
	if amount.Gt(total) {
		return "", cerrors.Validationf("amount %s exceeds batch total %s", amount.Dec(), total.Dec())
	}
	if amount.Lt(total) {
		allButLast := new(uint256.Int).Sub(total, last)
		if !allButLast.Lt(amount) {
			return "", cerrors.Validationf("batches before the last sum to %s, not strictly below amount %s", allButLast.Dec(), amount.Dec())
		}
	}
	if c.ledger.BalanceOf(ref, ctx.Caller).Lt(amount) {
		return "", cerrors.Validationf("balance of %q too low", ctx.Caller)
	}
	if c.ledger.Allowance(ref, ctx.Caller, CustodyAccount).Lt(amount) {
		return "", cerrors.Validationf("allowance of %q over %q too low", CustodyAccount, ctx.Caller)
	}

	// Admitted; apply.
	for _, id := range batchIDs {
		if _, err := c.batches.TransitionForRequest(id, kind.requestedStatus()); err != nil {
			return "", cerrors.Consistencyf("batch %d: %v after admission", id, err)
		}
	}
	if err := c.ledger.TransferFrom(ref, CustodyAccount, ctx.Caller, CustodyAccount, amount); err != nil {
		return "", cerrors.Consistencyf("escrow pull: %v after admission", err)
	}

	req := &Request{
		ID:        uuid.New().String(),
		Kind:      kind,
		Requester: ctx.Caller,
		Amount:    new(uint256.Int).Set(amount),
		BatchIDs:  append([]uint64(nil), batchIDs...),
		Vintage:   ref,
		Receipt:   receipt,
	}
	c.requests[req.ID] = req
	c.log.Append(journal.Entry{
		Type:    journal.RequestCreated,
		Actor:   ctx.Caller,
		Request: req.ID,
		Vintage: string(ref),
		Amount:  amount.Dec(),
		Details: map[string]string{"kind": kind.String()},
	})
	return req.ID, nil
}

// Finalize consumes a request: it splits the last batch if the request
// covers only part of the locked quantity, transitions every batch to its
// Finalized status, and burns the escrowed amount. For retirements it also
// registers a retirement event with the certificate issuer. The split
// serials are required exactly when splitting is structurally required and
// ignored otherwise.
func (c *Coordinator) Finalize(ctx authz.Context, requestID, serialBalancing, serialRemaining string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := c.lookup(requestID)
	if err != nil {
		return err
	}
	if err := ctx.Require(req.Kind.role()); err != nil {
		return err
	}
	if req.Consumed {
		return cerrors.Statef("request %s already consumed", requestID)
	}

	info, err := c.vintages.Get(req.Vintage)
	if err != nil {
		return err
	}
	scale := info.Scale()

	// Sum the current scaled quantities; a prior finalize of another
	// request may have split batch quantities since admission.
	total := new(uint256.Int)
	for _, id := range req.BatchIDs {
		rec, err := c.batches.Get(id)
		if err != nil {
			return err
		}
		if rec.Status != req.Kind.requestedStatus() {
			return cerrors.Statef("batch %d: expected status %s, found %s", id, req.Kind.requestedStatus(), rec.Status)
		}
		scaled, err := c.batches.ScaledQuantity(id)
		if err != nil {
			return err
		}
		total.Add(total, scaled)
	}

	// Batches are tracked in whole units; the fungible ledger may carry
	// finer precision. Round the request down to whole units to find the
	// backing that finalization consumes.
	normalized := new(uint256.Int).Div(req.Amount, scale)
	normalized.Mul(normalized, scale)

	if c.ledger.BalanceOf(req.Vintage, CustodyAccount).Lt(req.Amount) {
		return cerrors.Consistencyf("custody balance below request amount %s", req.Amount.Dec())
	}

	// Validate the split fully before anything irreversible runs, so a bad
	// split serial cannot leave a half-finalized request behind.
	needSplit := normalized.Lt(total)
	var splitUnits, lastID uint64
	if needSplit {
		if serialBalancing == "" || serialRemaining == "" {
			return cerrors.Consistencyf("request %s requires a split but split serials are missing", requestID)
		}
		remainderScaled := new(uint256.Int).Sub(total, normalized)
		units, mod := new(uint256.Int).DivMod(remainderScaled, scale, new(uint256.Int))
		if !mod.IsZero() || !units.IsUint64() {
			return cerrors.Consistencyf("split remainder %s is not a whole unit count", remainderScaled.Dec())
		}
		splitUnits = units.Uint64()
		lastID = req.BatchIDs[len(req.BatchIDs)-1]
		if err := c.batches.CheckSplit(lastID, serialBalancing, serialRemaining, splitUnits); err != nil {
			return err
		}
	}

	// Register the retirement event while nothing has mutated yet: an
	// issuer failure must leave the request retryable.
	if req.Kind == Retirement {
		eventID, err := c.certs.RegisterRetirementEvent(req.Requester, req.Vintage, req.Amount)
		if err != nil {
			return fmt.Errorf("registering retirement event: %w", err)
		}
		req.RetirementEventID = eventID
		c.log.Append(journal.Entry{
			Type:    journal.RetirementRegistered,
			Actor:   ctx.Caller,
			Request: req.ID,
			Vintage: string(req.Vintage),
			Amount:  req.Amount.Dec(),
			Details: map[string]string{"event_id": eventID},
		})
	}

	if needSplit {
		splitSibling, err := c.batches.Split(lastID, serialBalancing, serialRemaining, splitUnits)
		if err != nil {
			return cerrors.Consistencyf("batch %d: %v during split", lastID, err)
		}
		c.log.Append(journal.Entry{
			Type:    journal.BatchSplit,
			Actor:   ctx.Caller,
			Batch:   lastID,
			Request: req.ID,
			Vintage: string(req.Vintage),
			Serial:  serialBalancing,
			Details: map[string]string{
				"sibling":        strconv.FormatUint(splitSibling, 10),
				"sibling_serial": serialRemaining,
			},
		})
	}

	for _, id := range req.BatchIDs {
		if _, err := c.batches.TransitionForRequest(id, req.Kind.finalizedStatus()); err != nil {
			return cerrors.Consistencyf("batch %d: %v during finalize", id, err)
		}
		if req.Kind == Detokenization {
			if err := c.batches.Reassign(id, req.Requester); err != nil {
				return cerrors.Consistencyf("batch %d: %v during finalize", id, err)
			}
		}
	}

	if err := c.ledger.Burn(req.Vintage, CustodyAccount, req.Amount); err != nil {
		return cerrors.Consistencyf("custody burn: %v", err)
	}

	req.Consumed = true
	c.log.Append(journal.Entry{
		Type:    journal.RequestFinalized,
		Actor:   ctx.Caller,
		Request: req.ID,
		Vintage: string(req.Vintage),
		Amount:  req.Amount.Dec(),
	})
	return nil
}

// Revert consumes a request by returning its batches to Confirmed and its
// escrowed amount to the requester.
func (c *Coordinator) Revert(ctx authz.Context, requestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := c.lookup(requestID)
	if err != nil {
		return err
	}
	if err := ctx.Require(req.Kind.role()); err != nil {
		return err
	}
	if req.Consumed {
		return cerrors.Statef("request %s already consumed", requestID)
	}

	for _, id := range req.BatchIDs {
		rec, err := c.batches.Get(id)
		if err != nil {
			return err
		}
		if rec.Status != req.Kind.requestedStatus() {
			return cerrors.Statef("batch %d: expected status %s, found %s", id, req.Kind.requestedStatus(), rec.Status)
		}
	}
	if c.ledger.BalanceOf(req.Vintage, CustodyAccount).Lt(req.Amount) {
		return cerrors.Consistencyf("custody balance below request amount %s", req.Amount.Dec())
	}

	for _, id := range req.BatchIDs {
		if _, err := c.batches.TransitionForRequest(id, batch.Confirmed); err != nil {
			return cerrors.Consistencyf("batch %d: %v during revert", id, err)
		}
	}
	if err := c.ledger.Transfer(req.Vintage, CustodyAccount, req.Requester, req.Amount); err != nil {
		return cerrors.Consistencyf("custody return: %v", err)
	}

	req.Consumed = true
	c.log.Append(journal.Entry{
		Type:    journal.RequestReverted,
		Actor:   ctx.Caller,
		Request: req.ID,
		Vintage: string(req.Vintage),
		Amount:  req.Amount.Dec(),
	})
	return nil
}

// CheckConservation verifies that the vintage's outstanding supply equals
// the scaled quantities of its fractionalized batches in active statuses.
func (c *Coordinator) CheckConservation(ref vintage.Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	supply := c.ledger.Supply(ref)
	backing, err := c.batches.ActiveScaledBacking(ref)
	if err != nil {
		return err
	}
	if !supply.Eq(backing) {
		return cerrors.Consistencyf("vintage %q: supply %s, backing %s", ref, supply.Dec(), backing.Dec())
	}
	return nil
}

// Request returns a copy of a request.
func (c *Coordinator) Request(id string) (Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, err := c.lookup(id)
	if err != nil {
		return Request{}, err
	}
	return copyRequest(req), nil
}

// Requests returns copies of all requests, for persistence.
func (c *Coordinator) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, 0, len(c.requests))
	for _, req := range c.requests {
		out = append(out, copyRequest(req))
	}
	return out
}

// Restore replaces the coordinator's requests with previously persisted
// ones.
func (c *Coordinator) Restore(requests []Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]*Request, len(requests))
	for i := range requests {
		req := copyRequest(&requests[i])
		if _, dup := m[req.ID]; dup {
			return cerrors.Consistencyf("restore: duplicate request id %s", req.ID)
		}
		m[req.ID] = &req
	}
	c.requests = m
	return nil
}

// Journal returns the coordinator's operation journal.
func (c *Coordinator) Journal() *journal.Journal {
	return c.log
}

func (c *Coordinator) lookup(id string) (*Request, error) {
	req, ok := c.requests[id]
	if !ok {
		return nil, cerrors.NotFoundf("request %s", id)
	}
	return req, nil
}

func copyRequest(req *Request) Request {
	out := *req
	out.Amount = new(uint256.Int).Set(req.Amount)
	out.BatchIDs = append([]uint64(nil), req.BatchIDs...)
	if req.Receipt != nil {
		r := *req.Receipt
		out.Receipt = &r
	}
	return out
}
