// Package store persists the ledger's state in SQLite: batch records with
// their comment logs, escrow requests, fungible balances, and the operation
// journal. The in-memory structures remain the source of truth; the store
// writes snapshots and replays them on restart.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	_ "modernc.org/sqlite"

	"github.com/creditledger-xyz/go-creditledger/batch"
	"github.com/creditledger-xyz/go-creditledger/escrow"
	"github.com/creditledger-xyz/go-creditledger/journal"
	"github.com/creditledger-xyz/go-creditledger/ledger"
	"github.com/creditledger-xyz/go-creditledger/vintage"
)

// Store handles SQLite persistence for the ledger.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id INTEGER PRIMARY KEY,
		holder TEXT NOT NULL,
		serial TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 0,
		uri TEXT NOT NULL DEFAULT '',
		vintage TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL,
		fractionalized INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS batch_comments (
		batch_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		at TEXT NOT NULL,
		PRIMARY KEY (batch_id, seq),
		FOREIGN KEY (batch_id) REFERENCES batches(id)
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		kind INTEGER NOT NULL,
		requester TEXT NOT NULL,
		amount TEXT NOT NULL,
		vintage TEXT NOT NULL,
		consumed INTEGER NOT NULL DEFAULT 0,
		retirement_event_id TEXT NOT NULL DEFAULT '',
		beneficiary TEXT,
		beneficiary_message TEXT,
		retirement_message TEXT,
		consumption_start TEXT,
		consumption_end TEXT
	);

	CREATE TABLE IF NOT EXISTS request_batches (
		request_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		batch_id INTEGER NOT NULL,
		PRIMARY KEY (request_id, seq),
		FOREIGN KEY (request_id) REFERENCES requests(id)
	);

	CREATE TABLE IF NOT EXISTS balances (
		vintage TEXT NOT NULL,
		account TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (vintage, account)
	);

	CREATE TABLE IF NOT EXISTS allowances (
		vintage TEXT NOT NULL,
		owner TEXT NOT NULL,
		spender TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (vintage, owner, spender)
	);

	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		batch INTEGER NOT NULL DEFAULT 0,
		request TEXT NOT NULL DEFAULT '',
		vintage TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '',
		serial TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_batches_vintage ON batches(vintage);
	CREATE INDEX IF NOT EXISTS idx_journal_request ON journal(request);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveSnapshot replaces the persisted batches, requests, balances, and
// allowances in one transaction.
func (s *Store) SaveSnapshot(batches []batch.Record, requests []escrow.Request, balances []ledger.Balance, approvals []ledger.Approval) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"batch_comments", "batches", "request_batches", "requests", "balances", "allowances"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, b := range batches {
		if _, err := tx.Exec(
			`INSERT INTO batches (id, holder, serial, quantity, uri, vintage, status, fractionalized)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.Holder, b.Serial, b.Quantity, b.URI, string(b.Vintage), int(b.Status), b.Fractionalized,
		); err != nil {
			return fmt.Errorf("insert batch %d: %w", b.ID, err)
		}
		for i, c := range b.Comments {
			if _, err := tx.Exec(
				`INSERT INTO batch_comments (batch_id, seq, author, text, at) VALUES (?, ?, ?, ?, ?)`,
				b.ID, i, c.Author, c.Text, c.At.Format(time.RFC3339Nano),
			); err != nil {
				return fmt.Errorf("insert comment %d/%d: %w", b.ID, i, err)
			}
		}
	}

	for _, r := range requests {
		var beneficiary, beneficiaryMsg, retirementMsg, start, end sql.NullString
		if r.Receipt != nil {
			beneficiary = sql.NullString{String: r.Receipt.Beneficiary, Valid: true}
			beneficiaryMsg = sql.NullString{String: r.Receipt.BeneficiaryMessage, Valid: true}
			retirementMsg = sql.NullString{String: r.Receipt.RetirementMessage, Valid: true}
			start = sql.NullString{String: r.Receipt.ConsumptionPeriodStart.Format(time.RFC3339Nano), Valid: true}
			end = sql.NullString{String: r.Receipt.ConsumptionPeriodEnd.Format(time.RFC3339Nano), Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO requests (id, kind, requester, amount, vintage, consumed, retirement_event_id,
			 beneficiary, beneficiary_message, retirement_message, consumption_start, consumption_end)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, int(r.Kind), r.Requester, r.Amount.Dec(), string(r.Vintage), r.Consumed,
			r.RetirementEventID, beneficiary, beneficiaryMsg, retirementMsg, start, end,
		); err != nil {
			return fmt.Errorf("insert request %s: %w", r.ID, err)
		}
		for i, id := range r.BatchIDs {
			if _, err := tx.Exec(
				`INSERT INTO request_batches (request_id, seq, batch_id) VALUES (?, ?, ?)`,
				r.ID, i, id,
			); err != nil {
				return fmt.Errorf("insert request batch %s/%d: %w", r.ID, i, err)
			}
		}
	}

	for _, b := range balances {
		if _, err := tx.Exec(
			`INSERT INTO balances (vintage, account, amount) VALUES (?, ?, ?)`,
			string(b.Vintage), b.Account, b.Amount.Dec(),
		); err != nil {
			return fmt.Errorf("insert balance %s/%s: %w", b.Vintage, b.Account, err)
		}
	}

	for _, a := range approvals {
		if _, err := tx.Exec(
			`INSERT INTO allowances (vintage, owner, spender, amount) VALUES (?, ?, ?, ?)`,
			string(a.Vintage), a.Owner, a.Spender, a.Amount.Dec(),
		); err != nil {
			return fmt.Errorf("insert allowance %s/%s/%s: %w", a.Vintage, a.Owner, a.Spender, err)
		}
	}

	return tx.Commit()
}

// LoadBatches reads all persisted batch records, including comment logs.
func (s *Store) LoadBatches() ([]batch.Record, error) {
	rows, err := s.db.Query(
		`SELECT id, holder, serial, quantity, uri, vintage, status, fractionalized
		 FROM batches ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var records []batch.Record
	for rows.Next() {
		var rec batch.Record
		var ref string
		var status int
		if err := rows.Scan(&rec.ID, &rec.Holder, &rec.Serial, &rec.Quantity, &rec.URI, &ref, &status, &rec.Fractionalized); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		rec.Vintage = vintage.Ref(ref)
		rec.Status = batch.Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		comments, err := s.loadComments(records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Comments = comments
	}
	return records, nil
}

func (s *Store) loadComments(batchID uint64) ([]batch.Comment, error) {
	rows, err := s.db.Query(
		`SELECT author, text, at FROM batch_comments WHERE batch_id = ? ORDER BY seq`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []batch.Comment
	for rows.Next() {
		var c batch.Comment
		var at string
		if err := rows.Scan(&c.Author, &c.Text, &at); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if c.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse comment time: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// LoadRequests reads all persisted escrow requests.
func (s *Store) LoadRequests() ([]escrow.Request, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, requester, amount, vintage, consumed, retirement_event_id,
		 beneficiary, beneficiary_message, retirement_message, consumption_start, consumption_end
		 FROM requests`,
	)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var requests []escrow.Request
	for rows.Next() {
		var r escrow.Request
		var kind int
		var amount, ref string
		var beneficiary, beneficiaryMsg, retirementMsg, start, end sql.NullString
		if err := rows.Scan(&r.ID, &kind, &r.Requester, &amount, &ref, &r.Consumed,
			&r.RetirementEventID, &beneficiary, &beneficiaryMsg, &retirementMsg, &start, &end); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.Kind = escrow.Kind(kind)
		r.Vintage = vintage.Ref(ref)
		a, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("parse request amount: %w", err)
		}
		r.Amount = a
		if beneficiary.Valid {
			receipt := &escrow.Receipt{
				Beneficiary:        beneficiary.String,
				BeneficiaryMessage: beneficiaryMsg.String,
				RetirementMessage:  retirementMsg.String,
			}
			if receipt.ConsumptionPeriodStart, err = time.Parse(time.RFC3339Nano, start.String); err != nil {
				return nil, fmt.Errorf("parse consumption start: %w", err)
			}
			if receipt.ConsumptionPeriodEnd, err = time.Parse(time.RFC3339Nano, end.String); err != nil {
				return nil, fmt.Errorf("parse consumption end: %w", err)
			}
			r.Receipt = receipt
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range requests {
		ids, err := s.loadRequestBatches(requests[i].ID)
		if err != nil {
			return nil, err
		}
		requests[i].BatchIDs = ids
	}
	return requests, nil
}

func (s *Store) loadRequestBatches(requestID string) ([]uint64, error) {
	rows, err := s.db.Query(
		`SELECT batch_id FROM request_batches WHERE request_id = ? ORDER BY seq`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("query request batches: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan request batch: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadBalances reads all persisted account balances.
func (s *Store) LoadBalances() ([]ledger.Balance, error) {
	rows, err := s.db.Query(`SELECT vintage, account, amount FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var balances []ledger.Balance
	for rows.Next() {
		var b ledger.Balance
		var ref, amount string
		if err := rows.Scan(&ref, &b.Account, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		b.Vintage = vintage.Ref(ref)
		a, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("parse balance amount: %w", err)
		}
		b.Amount = a
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// LoadAllowances reads all persisted allowances.
func (s *Store) LoadAllowances() ([]ledger.Approval, error) {
	rows, err := s.db.Query(`SELECT vintage, owner, spender, amount FROM allowances`)
	if err != nil {
		return nil, fmt.Errorf("query allowances: %w", err)
	}
	defer rows.Close()

	var approvals []ledger.Approval
	for rows.Next() {
		var a ledger.Approval
		var ref, amount string
		if err := rows.Scan(&ref, &a.Owner, &a.Spender, &amount); err != nil {
			return nil, fmt.Errorf("scan allowance: %w", err)
		}
		a.Vintage = vintage.Ref(ref)
		v, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("parse allowance amount: %w", err)
		}
		a.Amount = v
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// AppendJournal persists one journal entry.
func (s *Store) AppendJournal(e journal.Entry) error {
	details := ""
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode journal details: %w", err)
		}
		details = string(raw)
	}
	_, err := s.db.Exec(
		`INSERT INTO journal (id, type, timestamp, actor, batch, request, vintage, amount, serial, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Timestamp.Format(time.RFC3339Nano),
		e.Actor, e.Batch, e.Request, e.Vintage, e.Amount, e.Serial, details,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// LoadJournal reads all persisted journal entries in append order.
func (s *Store) LoadJournal() ([]journal.Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, type, timestamp, actor, batch, request, vintage, amount, serial, details
		 FROM journal ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		var typ, ts, details string
		if err := rows.Scan(&e.ID, &typ, &ts, &e.Actor, &e.Batch, &e.Request, &e.Vintage, &e.Amount, &e.Serial, &details); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Type = journal.EntryType(typ)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse journal timestamp: %w", err)
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("decode journal details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
