package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/authz"
	"github.com/creditledger-xyz/go-creditledger/batch"
	"github.com/creditledger-xyz/go-creditledger/certificate"
	"github.com/creditledger-xyz/go-creditledger/escrow"
	"github.com/creditledger-xyz/go-creditledger/journal"
	"github.com/creditledger-xyz/go-creditledger/ledger"
	"github.com/creditledger-xyz/go-creditledger/store"
	"github.com/creditledger-xyz/go-creditledger/vintage"
)

// config is the static ledger configuration: known vintages and the role
// table. State lives in the database; the config describes the environment.
type config struct {
	Vintages []vintageConfig         `json:"vintages"`
	Roles    map[string][]authz.Role `json:"roles"`
}

type vintageConfig struct {
	Ref      string `json:"ref"`
	Decimals uint8  `json:"decimals"`
	// Precision is the minimal request denomination in base units, as a
	// decimal string. Empty means whole-unit precision.
	Precision string `json:"precision,omitempty"`
	TotalCap  uint64 `json:"total_cap,omitempty"`
}

// app is one fully wired ledger instance loaded from the database.
type app struct {
	store    *store.Store
	vintages *vintage.MemoryRegistry
	batches  *batch.Registry
	ledger   *ledger.Ledger
	certs    *certificate.Recorder
	journal  *journal.Journal
	coord    *escrow.Coordinator
	auth     authz.StaticAuthority
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Vintages) == 0 {
		return nil, fmt.Errorf("config declares no vintages")
	}
	return &cfg, nil
}

// loadApp opens the database, replays the persisted snapshot, and wires the
// coordinator.
func loadApp(configPath, dbPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	vintages := vintage.NewMemoryRegistry()
	for _, v := range cfg.Vintages {
		info := vintage.Info{Ref: vintage.Ref(v.Ref), Decimals: v.Decimals, TotalCap: v.TotalCap}
		if v.Precision != "" {
			p, err := uint256.FromDecimal(v.Precision)
			if err != nil {
				return nil, fmt.Errorf("vintage %q: parse precision: %w", v.Ref, err)
			}
			info.Precision = p
		}
		vintages.Register(info)
	}

	s, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:    s,
		vintages: vintages,
		batches:  batch.NewRegistry(vintages),
		ledger:   ledger.New(vintages),
		certs:    certificate.NewRecorder(),
		auth:     authz.StaticAuthority(cfg.Roles),
	}
	a.coord = escrow.NewCoordinator(a.batches, a.ledger, a.vintages, a.certs)
	// Commands that bypass the coordinator record into the same in-memory
	// journal; save() flushes everything to the database in one pass.
	a.journal = a.coord.Journal()

	records, err := s.LoadBatches()
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := a.batches.Restore(records); err != nil {
		s.Close()
		return nil, err
	}
	requests, err := s.LoadRequests()
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := a.coord.Restore(requests); err != nil {
		s.Close()
		return nil, err
	}
	balances, err := s.LoadBalances()
	if err != nil {
		s.Close()
		return nil, err
	}
	approvals, err := s.LoadAllowances()
	if err != nil {
		s.Close()
		return nil, err
	}
	a.ledger.Restore(balances, approvals)
	return a, nil
}

// save writes the current state back as one snapshot and appends the journal
// entries produced during this run.
func (a *app) save() error {
	if err := a.store.SaveSnapshot(a.batches.Records(), a.coord.Requests(), a.ledger.Balances(), a.ledger.Approvals()); err != nil {
		return err
	}
	for _, e := range a.journal.Entries() {
		if err := a.store.AppendJournal(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() error {
	return a.store.Close()
}

// caller resolves the acting identity's roles from the config's role table.
func (a *app) caller(name string) authz.Context {
	return authz.Resolve(a.auth, name)
}
