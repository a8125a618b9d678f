package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/creditledger-xyz/go-creditledger/vintage"
)

func show(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	requestID := fs.String("request", "", "Show one request")
	ref := fs.String("vintage", "", "Show balances for one vintage")
	outputJSON := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger show [options]

Show the batch table, one request, or the balances of a vintage.

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

	if *requestID != "" {
		req, err := a.coord.Request(*requestID)
		if err != nil {
			return err
		}
		if *outputJSON {
			return printJSON(req)
		}
		fmt.Printf("Request %s\n", req.ID)
		fmt.Printf("  Kind:      %s\n", req.Kind)
		fmt.Printf("  Requester: %s\n", req.Requester)
		fmt.Printf("  Vintage:   %s\n", req.Vintage)
		fmt.Printf("  Amount:    %s\n", req.Amount.Dec())
		fmt.Printf("  Batches:   %v\n", req.BatchIDs)
		fmt.Printf("  Consumed:  %v\n", req.Consumed)
		if req.RetirementEventID != "" {
			fmt.Printf("  Event:     %s\n", req.RetirementEventID)
		}
		return nil
	}

	if *ref != "" {
		v := vintage.Ref(*ref)
		if !a.vintages.Exists(v) {
			return fmt.Errorf("unknown vintage %q", *ref)
		}
		balances := a.ledger.Balances()
		if *outputJSON {
			return printJSON(balances)
		}
		fmt.Printf("Vintage %s\n", v)
		fmt.Printf("  Supply: %s\n", a.ledger.Supply(v).Dec())
		for _, b := range balances {
			if b.Vintage == v {
				fmt.Printf("  %-24s %s\n", b.Account, b.Amount.Dec())
			}
		}
		return nil
	}

	records := a.batches.Records()
	if *outputJSON {
		return printJSON(records)
	}
	fmt.Printf("%-5s %-12s %-26s %8s %6s %s\n", "ID", "HOLDER", "STATUS", "QTY", "FRACT", "VINTAGE")
	for _, rec := range records {
		fract := ""
		if rec.Fractionalized {
			fract = "yes"
		}
		fmt.Printf("%-5d %-12s %-26s %8d %6s %s\n", rec.ID, rec.Holder, rec.Status, rec.Quantity, fract, rec.Vintage)
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
