package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/creditledger-xyz/go-creditledger/journal"
	"github.com/creditledger-xyz/go-creditledger/vintage"
)

func confirm(args []string) error {
	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (requires the verifier role)")
	batchID := fs.Uint64("batch", 0, "Batch id")
	ref := fs.String("vintage", "", "Vintage reference to confirm the batch against")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger confirm [options]

Confirm a Pending batch against a vintage. Confirmation validates the
serial range against the batch quantity and claims the serial globally.

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
	if *ref != "" {
		err = a.batches.ConfirmWithVintage(ctx, *batchID, vintage.Ref(*ref))
	} else {
		err = a.batches.Confirm(ctx, *batchID)
	}
	if err != nil {
		return err
	}
	a.journal.Append(journal.Entry{Type: journal.BatchConfirmed, Actor: *caller, Batch: *batchID, Vintage: *ref})
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("Confirmed batch %d\n", *batchID)
	return nil
}

func reject(args []string) error {
	fs := flag.NewFlagSet("reject", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (requires the verifier role)")
	batchID := fs.Uint64("batch", 0, "Batch id")
	resubmit := fs.Bool("resubmit", false, "Return a Rejected batch to Pending instead")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger reject [options]

Reject a Pending batch, releasing any serial claim it holds. A rejected
batch can be corrected and resubmitted with --resubmit.

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
	if *resubmit {
		if err := a.batches.SetToPending(ctx, *batchID); err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("Batch %d returned to pending\n", *batchID)
		return nil
	}

	if err := a.batches.Reject(ctx, *batchID); err != nil {
		return err
	}
	a.journal.Append(journal.Entry{Type: journal.BatchRejected, Actor: *caller, Batch: *batchID})
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("Rejected batch %d\n", *batchID)
	return nil
}
