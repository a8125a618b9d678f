package main

import (
	"flag"
	"fmt"
	"os"
)

func finalize(args []string) error {
	fs := flag.NewFlagSet("finalize", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (detokenizer or retirer, per request kind)")
	requestID := fs.String("request", "", "Request id")
	serialBalancing := fs.String("serial-balancing", "", "Serial of the consumed portion when splitting")
	serialRemaining := fs.String("serial-remaining", "", "Serial of the remaining portion when splitting")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger finalize [options]

Finalize a request: burn the escrowed amount and move its batches to their
terminal status. When the request covers only part of the locked quantity
the last batch splits, and the two split serials are required.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caller == "" || *requestID == "" {
		fs.Usage()
		return fmt.Errorf("--caller and --request are required")
	}

	a, err := loadApp(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.Finalize(a.caller(*caller), *requestID, *serialBalancing, *serialRemaining); err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}

	req, err := a.coord.Request(*requestID)
	if err != nil {
		return err
	}
	fmt.Printf("Finalized %s request %s (%s base units)\n", req.Kind, req.ID, req.Amount.Dec())
	if req.RetirementEventID != "" {
		fmt.Printf("Retirement event: %s\n", req.RetirementEventID)
	}
	return nil
}

func revert(args []string) error {
	fs := flag.NewFlagSet("revert", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (detokenizer or retirer, per request kind)")
	requestID := fs.String("request", "", "Request id")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger revert [options]

Revert a request: return its batches to Confirmed and the escrowed amount
to the requester.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caller == "" || *requestID == "" {
		fs.Usage()
		return fmt.Errorf("--caller and --request are required")
	}

	a, err := loadApp(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.Revert(a.caller(*caller), *requestID); err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("Reverted request %s\n", *requestID)
	return nil
}
