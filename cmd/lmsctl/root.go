package main

import (
	"fmt"
	"io"
	"lms/pkg/circulation"
	"lms/pkg/database"
	"lms/pkg/store"
	"strconv"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app carries the library handle shared by all subcommands. It is opened
// lazily in the root's PersistentPreRunE and closed by execute.
type app struct {
	driver string
	dsn    string
	db     *gorm.DB
	lib    *circulation.Library
}

// execute runs the command line args and always releases the database
// handle, including when the command fails.
func execute(a *app, args []string, out io.Writer) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	err := root.Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lmsctl",
		Short: "Operate the library circulation database",
		Long: `lmsctl manages members, books and loans and prints circulation reports.
Connection settings come from DB_* environment variables unless --driver/--dsn are given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
	}
	root.PersistentFlags().StringVar(&a.driver, "driver", "", "database driver (postgres|sqlite)")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "database DSN or sqlite file path")

	root.AddCommand(
		newMemberCmd(a),
		newBookCmd(a),
		newBorrowCmd(a),
		newReturnCmd(a),
		newReportCmd(a),
		newMigrateCmd(),
	)
	return root
}

func (a *app) open() error {
	cfg := database.ConfigFromEnv()
	if a.driver != "" {
		cfg = database.ConfigForDriver(a.driver)
	}
	if a.dsn != "" {
		cfg.DSN = a.dsn
	}
	cfg.MaxRetries = 1

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	a.db = db
	a.lib = circulation.New(store.New(db, nil))
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the circulation tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// tables are migrated when the connection is opened
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
			return nil
		},
	}
}

func parseID(kind, s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%s id must be a positive integer, got %q", kind, s)
	}
	return uint(id), nil
}
