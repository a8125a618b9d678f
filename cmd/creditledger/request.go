package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/escrow"
)

func fractionalize(args []string) error {
	fs := flag.NewFlagSet("fractionalize", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (requires the tokenizer role)")
	batchID := fs.Uint64("batch", 0, "Batch id")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger fractionalize [options]

Mint a Confirmed batch's quantity as fungible supply to its holder. A
batch can be fractionalized once; the mint is bounded by the vintage's
deposit cap.

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

	if err := a.coord.Fractionalize(a.caller(*caller), *batchID); err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}

	rec, err := a.batches.Get(*batchID)
	if err != nil {
		return err
	}
	fmt.Printf("Fractionalized batch %d: %d units minted to %s\n", *batchID, rec.Quantity, rec.Holder)
	return nil
}

func request(args []string) error {
	fs := flag.NewFlagSet("request", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (the requester)")
	kindName := fs.String("kind", "", "Request kind: detokenization or retirement")
	amountStr := fs.String("amount", "", "Amount in base units (decimal)")
	batchList := fs.String("batches", "", "Comma-separated batch ids; only the last may be split")
	beneficiary := fs.String("beneficiary", "", "Retirement beneficiary")
	beneficiaryMsg := fs.String("beneficiary-message", "", "Message to the beneficiary")
	retirementMsg := fs.String("retirement-message", "", "Public retirement message")
	periodStart := fs.String("period-start", "", "Consumption period start (RFC 3339)")
	periodEnd := fs.String("period-end", "", "Consumption period end (RFC 3339)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger request [options]

Create a detokenization or retirement request. The requester must hold the
amount and have approved the escrow custody account for it; the referenced
batches are locked until the request is finalized or reverted.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caller == "" || *kindName == "" || *amountStr == "" || *batchList == "" {
		fs.Usage()
		return fmt.Errorf("--caller, --kind, --amount, and --batches are required")
	}

	var kind escrow.Kind
	switch *kindName {
	case "detokenization":
		kind = escrow.Detokenization
	case "retirement":
		kind = escrow.Retirement
	default:
		return fmt.Errorf("unknown kind %q", *kindName)
	}

	amount, err := uint256.FromDecimal(*amountStr)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	var batchIDs []uint64
	for _, part := range strings.Split(*batchList, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return fmt.Errorf("parse batch id %q: %w", part, err)
		}
		batchIDs = append(batchIDs, id)
	}

	var receipt *escrow.Receipt
	if kind == escrow.Retirement {
		receipt = &escrow.Receipt{
			Beneficiary:        *beneficiary,
			BeneficiaryMessage: *beneficiaryMsg,
			RetirementMessage:  *retirementMsg,
		}
		if *periodStart != "" {
			if receipt.ConsumptionPeriodStart, err = time.Parse(time.RFC3339, *periodStart); err != nil {
				return fmt.Errorf("parse period start: %w", err)
			}
		}
		if *periodEnd != "" {
			if receipt.ConsumptionPeriodEnd, err = time.Parse(time.RFC3339, *periodEnd); err != nil {
				return fmt.Errorf("parse period end: %w", err)
			}
		}
	}

	a, err := loadApp(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.coord.CreateRequest(a.caller(*caller), kind, amount, batchIDs, receipt)
	if err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("Created %s request %s\n", kind, id)
	return nil
}
