// Package journal provides the append-only operation journal. Every
// state-changing ledger operation emits one typed entry; entries are kept
// in memory and optionally streamed to a writer as JSONL, one JSON object
// per line.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryType names the operation an entry records.
type EntryType string

const (
	BatchMinted          EntryType = "batch_minted"
	BatchConfirmed       EntryType = "batch_confirmed"
	BatchRejected        EntryType = "batch_rejected"
	BatchSplit           EntryType = "batch_split"
	Fractionalized       EntryType = "fractionalized"
	RequestCreated       EntryType = "request_created"
	RequestFinalized     EntryType = "request_finalized"
	RequestReverted      EntryType = "request_reverted"
	RetirementRegistered EntryType = "retirement_registered"
)

// Entry is one journal record. Amount is the decimal rendering of the
// base-unit amount, if the operation has one.
type Entry struct {
	ID        string            `json:"id"`
	Type      EntryType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"`
	Batch     uint64            `json:"batch,omitempty"`
	Request   string            `json:"request,omitempty"`
	Vintage   string            `json:"vintage,omitempty"`
	Amount    string            `json:"amount,omitempty"`
	Serial    string            `json:"serial,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Journal is an append-only log of entries.
type Journal struct {
	mu      sync.Mutex
	w       io.Writer
	entries []Entry
}

// New creates a journal. w may be nil, in which case entries are only kept
// in memory.
func New(w io.Writer) *Journal {
	return &Journal{w: w}
}

// Append assigns the entry an id and timestamp and appends it in memory,
// without streaming. For journals without a writer this is the whole
// operation and cannot fail.
func (j *Journal) Append(e Entry) {
	e.ID = uuid.New().String()
	e.Timestamp = time.Now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

// Record assigns the entry an id and timestamp, appends it, and writes one
// JSONL line if the journal has a writer.
func (j *Journal) Record(e Entry) error {
	e.ID = uuid.New().String()
	e.Timestamp = time.Now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	if j.w == nil {
		return nil
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}
	if _, err := j.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

// Entries returns a copy of all recorded entries in order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Replace swaps the in-memory entries, for restore from persistence.
func (j *Journal) Replace(entries []Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = make([]Entry, len(entries))
	copy(j.entries, entries)
}

// ReadJSONL parses journal entries back from a JSONL stream.
func ReadJSONL(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return entries, nil
}
