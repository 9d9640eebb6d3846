package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/bunkar/database/seeders"
	"github.com/shashiranjanraj/bunkar/internal/server"
	"github.com/shashiranjanraj/bunkar/pkg/migration"
)

func printNames(verb string, names []string) {
	if len(names) == 0 {
		fmt.Printf("Nothing to %s.\n", verb)
		return
	}
	for _, n := range names {
		fmt.Printf("  %s: %s\n", verb, n)
	}
}

// bunkar migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run all pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := server.Connect()
		if err != nil {
			return err
		}
		names, err := migration.New(db).Run(cmd.Context())
		printNames("migrate", names)
		return err
	},
}

// bunkar migrate:rollback
var migrateRollbackCmd = &cobra.Command{
	Use:   "migrate:rollback",
	Short: "Roll back the last batch of migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := server.Connect()
		if err != nil {
			return err
		}
		names, err := migration.New(db).Rollback(cmd.Context())
		printNames("roll back", names)
		return err
	},
}

// bunkar migrate:status
var migrateStatusCmd = &cobra.Command{
	Use:   "migrate:status",
	Short: "Show the status of each migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := server.Connect()
		if err != nil {
			return err
		}
		statuses, err := migration.New(db).Status(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tRAN\tBATCH")
		for _, s := range statuses {
			batch := "-"
			if s.Ran {
				batch = fmt.Sprint(s.Batch)
			}
			fmt.Fprintf(w, "%s\t%t\t%s\n", s.Name, s.Ran, batch)
		}
		return w.Flush()
	},
}

// bunkar seed
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Run all database seeders",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := server.Connect()
		if err != nil {
			return err
		}
		names, err := seeders.RunAll(cmd.Context(), db)
		printNames("seed", names)
		return err
	},
}
