package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/escrow"
	"github.com/creditledger-xyz/go-creditledger/vintage"
)

func transfer(args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (the sender)")
	ref := fs.String("vintage", "", "Vintage reference")
	to := fs.String("to", "", "Receiving account")
	amountStr := fs.String("amount", "", "Amount in base units (decimal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger transfer [options]

Transfer fungible tokens between accounts within one vintage.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caller == "" || *ref == "" || *to == "" || *amountStr == "" {
		fs.Usage()
		return fmt.Errorf("--caller, --vintage, --to, and --amount are required")
	}
	amount, err := uint256.FromDecimal(*amountStr)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	a, err := loadApp(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ledger.Transfer(vintage.Ref(*ref), *caller, *to, amount); err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("Transferred %s from %s to %s\n", amount.Dec(), *caller, *to)
	return nil
}

func approve(args []string) error {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	configPath := fs.String("config", "ledger.json", "Ledger configuration file")
	dbPath := fs.String("db", "ledger.db", "State database")
	caller := fs.String("caller", "", "Acting identity (the token owner)")
	ref := fs.String("vintage", "", "Vintage reference")
	spender := fs.String("spender", escrow.CustodyAccount, "Approved spender")
	amountStr := fs.String("amount", "", "Allowance in base units (decimal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: creditledger approve [options]

Set a spending allowance. Requests pull the escrowed amount through the
custody account, so the requester must approve it first; the custody
account is the default spender.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caller == "" || *ref == "" || *amountStr == "" {
		fs.Usage()
		return fmt.Errorf("--caller, --vintage, and --amount are required")
	}
	amount, err := uint256.FromDecimal(*amountStr)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	a, err := loadApp(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ledger.Approve(vintage.Ref(*ref), *caller, *spender, amount); err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("Approved %s for %s over %s's balance\n", amount.Dec(), *spender, *caller)
	return nil
}
