package main

import (
	"fmt"
	"lms/pkg/circulation"
	"time"

	"github.com/spf13/cobra"
)

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Circulation reports",
	}

	var limit int
	top := &cobra.Command{
		Use:   "top",
		Short: "Most borrowed books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := a.lib.Reports.TopBorrowed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, b := range books {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\tborrowed=%d\n", b.BookID, b.Title, b.Author, b.BorrowCount)
			}
			return nil
		},
	}
	top.Flags().IntVar(&limit, "limit", circulation.DefaultTopLimit, "number of books")

	var days int
	overdue := &cobra.Command{
		Use:   "overdue",
		Short: "Active loans older than the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loans, err := a.lib.Reports.Overdue(cmd.Context(), days)
			if err != nil {
				return err
			}
			for _, l := range loans {
				fmt.Fprintf(cmd.OutOrStdout(), "member %d\tbook %d\tborrowed %s\n",
					l.MemberID, l.BookID, l.BorrowDate.Format(time.RFC3339))
			}
			return nil
		},
	}
	overdue.Flags().IntVar(&days, "days", circulation.DefaultOverdueDays, "threshold in days")

	cmd.AddCommand(top, overdue)
	return cmd
}
