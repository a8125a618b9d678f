package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/creditledger-xyz/go-creditledger/journal"
)

func mint(args []string) error {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (requires the tokenizer role)")
	holder := fs.String("holder", "", "Holder of the new batch")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger mint [options]

Mint a new empty batch record in Pending status. The holder fills in the
serial and quantity with 'set' before a verifier confirms the batch.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caller == "" || *holder == "" {
		fs.Usage()
		return fmt.Errorf("--caller and --holder are required")
	}

	a, err := loadApp(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.batches.Mint(a.caller(*caller), *holder)
	if err != nil {
		return err
	}
	a.journal.Append(journal.Entry{Type: journal.BatchMinted, Actor: *caller, Batch: id})
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("Minted batch %d for holder %s\n", id, *holder)
	return nil
}

func set(args []string) error {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (holder or verifier)")
	batchID := fs.Uint64("batch", 0, "Batch id")
	serialNumber := fs.String("serial", "", "Serial number range")
	quantity := fs.Uint64("quantity", 0, "Quantity in whole certificate units")
	uri := fs.String("uri", "", "Metadata URI")
	comment := fs.String("comment", "", "Append a comment instead of setting data")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger set [options]

Set serial, quantity, and metadata URI on a Pending batch, or append a
comment to its log with --comment.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caller == "" || *batchID == 0 {
		fs.Usage()
		return fmt.Errorf("--caller and --batch are required")
	}

	a, err := loadApp(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := a.caller(*caller)
	if *comment != "" {
		if err := a.batches.AddComment(ctx, *batchID, *comment); err != nil {
			return err
		}
	} else {
		if err := a.batches.SetData(ctx, *batchID, *serialNumber, *quantity, *uri); err != nil {
			return err
		}
	}
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("Updated batch %d\n", *batchID)
	return nil
}
