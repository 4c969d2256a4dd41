package main

import (
	"encoding/json"
	"fmt"

	"github.com/richardliu001/address-ledger/internal/ledger"
	"github.com/richardliu001/address-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func historyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "history",
			Aliases:  []string{"f"},
			Usage:    "JSON file with the transaction history, - for stdin",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "where",
			Usage: `jq expression selecting records, e.g. '.created_at < "2026-01-01"'`,
		},
	}
}

func readHistory(c *cli.Context) ([]model.Transaction, error) {
	f, err := openHistory(c.String("history"), c.App.Reader)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loadHistory(f, c.String("where"))
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Fold a history into the balance of one address",
		Flags: append(historyFlags(),
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Address to compute the balance for",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print the fold before clamping at zero",
			},
		),
		Action: func(c *cli.Context) error {
			history, err := readHistory(c)
			if err != nil {
				return err
			}
			address := c.String("address")
			bal := ledger.ComputeBalance(address, history)
			if c.Bool("raw") {
				bal = ledger.RawBalance(address, history)
			}
			fmt.Fprintln(c.App.Writer, bal.String())
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check a candidate transaction against the source address's history",
		Flags: append(historyFlags(),
			&cli.StringFlag{Name: "from", Usage: "Source address", Required: true},
			&cli.StringFlag{Name: "to", Usage: "Destination address", Required: true},
			&cli.StringFlag{Name: "amount", Usage: "Decimal amount", Required: true},
			&cli.StringFlag{Name: "type", Usage: "deposit or withdrawal", Value: "deposit"},
			&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
		),
		Action: func(c *cli.Context) error {
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			typ, err := model.ParseTransactionType(c.String("type"))
			if err != nil {
				return err
			}
			history, err := readHistory(c)
			if err != nil {
				return err
			}

			candidate := model.Transaction{
				AddressFrom: c.String("from"),
				AddressTo:   c.String("to"),
				Amount:      amount,
				Type:        typ,
			}
			violations := ledger.Validate(candidate, history)

			if c.Bool("json") {
				data, _ := json.Marshal(map[string]interface{}{
					"valid":  len(violations) == 0,
					"errors": violations.Messages(),
				})
				fmt.Fprintln(c.App.Writer, string(data))
			} else if len(violations) == 0 {
				fmt.Fprintln(c.App.Writer, "valid")
			} else {
				for _, msg := range violations.Messages() {
					fmt.Fprintln(c.App.Writer, msg)
				}
			}
			if len(violations) > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
