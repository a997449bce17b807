package main

import (
	"fmt"
	"lms/pkg/circulation"
	"lms/pkg/models"
	"strconv"

	"github.com/spf13/cobra"
)

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the book catalogue",
	}

	var author, category string
	var stock int
	add := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.lib.Books.Add(cmd.Context(), args[0], author, category, stock)
			if err != nil {
				return err
			}
			printBooks(cmd, []models.Book{*b})
			return nil
		},
	}
	add.Flags().StringVar(&author, "author", "", "author")
	add.Flags().StringVar(&category, "category", "", "category")
	add.Flags().IntVar(&stock, "stock", circulation.DefaultStock, "copies available")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all books with availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := a.lib.Books.List(cmd.Context())
			if err != nil {
				return err
			}
			printBooks(cmd, books)
			return nil
		},
	}

	search := &cobra.Command{
		Use:   "search KEYWORD",
		Short: "Search by title, author or category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyword := ""
			if len(args) == 1 {
				keyword = args[0]
			}
			books, err := a.lib.Books.Search(cmd.Context(), keyword)
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No books found matching the keyword.")
				return nil
			}
			printBooks(cmd, books)
			return nil
		},
	}

	setStock := &cobra.Command{
		Use:   "stock ID COUNT",
		Short: "Set the number of available copies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("stock must be an integer, got %q", args[1])
			}
			b, err := a.lib.Books.UpdateStock(cmd.Context(), id, n)
			if err != nil {
				return err
			}
			printBooks(cmd, []models.Book{*b})
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a book that is not lent out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			if _, err := a.lib.Books.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book %d deleted.\n", id)
			return nil
		},
	}

	cmd.AddCommand(add, list, search, setStock, del)
	return cmd
}

func printBooks(cmd *cobra.Command, books []models.Book) {
	for _, b := range books {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\tstock=%d\n", b.BookID, b.Title, b.Author, b.Category, b.Stock)
	}
}
