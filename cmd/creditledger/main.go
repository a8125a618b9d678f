package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "mint":
		if err := mint(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "set":
		if err := set(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "confirm":
		if err := confirm(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "reject":
		if err := reject(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "fractionalize":
		if err := fractionalize(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "transfer":
		if err := transfer(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "approve":
		if err := approve(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "request":
		if err := request(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "finalize":
		if err := finalize(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "revert":
		if err := revert(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "show":
		if err := show(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "conservation":
		if err := conservation(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "journal":
		if err := journalCmd(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("creditledger version 1.0.0")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`creditledger - carbon credit batch tokenization ledger

Usage:
  creditledger <command> [options]

Commands:
  mint           Mint a new empty batch record
  set            Set serial, quantity, and metadata on a pending batch
  confirm        Confirm a pending batch against a vintage
  reject         Reject a pending batch
  fractionalize  Mint a confirmed batch's quantity as fungible supply
  transfer       Transfer fungible tokens between accounts
  approve        Approve a spender (defaults to the escrow custody account)
  request        Create a detokenization or retirement request
  finalize       Finalize a request, splitting the last batch if needed
  revert         Revert a request and return the escrowed funds
  show           Show batches, balances, or a request
  conservation   Check the supply/backing invariant, optionally with a proof
  journal        Show the operation journal
  help           Show this help message
  version        Show version information

Examples:
  # Mint and confirm a batch
  creditledger mint --config ledger.json --db ledger.db --caller tom --holder alice
  creditledger set --config ledger.json --db ledger.db --caller alice --batch 1 \
      --serial "11111111-1111-1111-1111-111111111111_1-100" --quantity 100
  creditledger confirm --config ledger.json --db ledger.db --caller vera \
      --batch 1 --vintage "VCS-191/2019"

  # Tokenize and retire
  creditledger fractionalize --config ledger.json --db ledger.db --caller tom --batch 1
  creditledger approve --config ledger.json --db ledger.db --caller alice \
      --vintage "VCS-191/2019" --amount 60000000000000000000
  creditledger request --config ledger.json --db ledger.db --caller alice \
      --kind retirement --amount 60000000000000000000 --batches 1 --beneficiary ACME

For command-specific help, run:
  creditledger <command> --help`)
}
