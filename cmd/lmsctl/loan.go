package main

import (
	"context"
	"fmt"
	"lms/pkg/circulation"

	"github.com/spf13/cobra"
)

type loanFunc func(ctx context.Context, memberID, bookID uint) (*circulation.Confirmation, error)

func newBorrowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow MEMBER_ID BOOK_ID",
		Short: "Lend a book to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoan(cmd, args, a.lib.Loans.Borrow)
		},
	}
}

func newReturnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "return MEMBER_ID BOOK_ID",
		Short: "Take a book back from a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoan(cmd, args, a.lib.Loans.Return)
		},
	}
}

func runLoan(cmd *cobra.Command, args []string, fn loanFunc) error {
	memberID, err := parseID("member", args[0])
	if err != nil {
		return err
	}
	bookID, err := parseID("book", args[1])
	if err != nil {
		return err
	}
	conf, err := fn(cmd.Context(), memberID, bookID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (receipt %s)\n", conf.Message, conf.RecordUid)
	return nil
}
