package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

func journalCmd(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	outputFile := fs.String("output", "", "Export entries as JSONL to file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger journal [options]

Show the persisted operation journal, oldest first. With --output the
entries are exported as JSONL, one JSON object per line.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := loadApp(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.store.LoadJournal()
	if err != nil {
		return err
	}

	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		for _, e := range entries {
			line, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal entry: %w", err)
			}
			if _, err := f.Write(append(line, '\n')); err != nil {
				return fmt.Errorf("write entry: %w", err)
			}
		}
		fmt.Fprintf(os.Stderr, "%d entries written to %s\n", len(entries), *outputFile)
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s  %-22s  actor=%s", e.Timestamp.Format(time.RFC3339), e.Type, e.Actor)
		if e.Batch != 0 {
			fmt.Printf("  batch=%d", e.Batch)
		}
		if e.Request != "" {
			fmt.Printf("  request=%s", e.Request)
		}
		if e.Amount != "" {
			fmt.Printf("  amount=%s", e.Amount)
		}
		for k, v := range e.Details {
			fmt.Printf("  %s=%s", k, v)
		}
		fmt.Println()
	}
	return nil
}
