package main

import (
	"fmt"
	"lms/pkg/circulation"
	"lms/pkg/models"
	"time"

	"github.com/spf13/cobra"
)

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage library members",
	}

	var email string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.lib.Members.Add(cmd.Context(), args[0], email)
			if err != nil {
				return err
			}
			printMember(cmd, m)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "member email")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show a member and their loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			details, err := a.lib.Members.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			printMember(cmd, &details.Member)
			for _, l := range details.Loans {
				returned := "not returned"
				if l.ReturnDate != nil {
					returned = "returned " + l.ReturnDate.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  book %d borrowed %s, %s\n",
					l.BookID, l.BorrowDate.Format(time.RFC3339), returned)
			}
			return nil
		},
	}

	var newName, newEmail string
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change a member's name or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			m, err := a.lib.Members.Update(cmd.Context(), id,
				circulation.MemberUpdate{Name: &newName, Email: &newEmail})
			if err != nil {
				return err
			}
			printMember(cmd, m)
			return nil
		},
	}
	update.Flags().StringVar(&newName, "name", "", "new name")
	update.Flags().StringVar(&newEmail, "email", "", "new email")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a member without active loans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			if _, err := a.lib.Members.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Member %d deleted.\n", id)
			return nil
		},
	}

	cmd.AddCommand(add, get, update, del)
	return cmd
}

func printMember(cmd *cobra.Command, m *models.Member) {
	fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", m.MemberID, m.Name, m.Email)
}
