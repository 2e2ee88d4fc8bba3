// geekctl seeds the intake database and runs offline matches against it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/geek-intake/internal/store"
)

var (
	dbFlag  string
	rootCmd = &cobra.Command{
		Use:           "geekctl",
		Short:         "Operator CLI for the geek intake database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func openStore() (*store.SQLiteStore, error) {
	if dbFlag == "" {
		return nil, fmt.Errorf("--db required")
	}
	return store.NewSQLite(dbFlag)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "./data/intake.db", "SQLite database path")
	rootCmd.AddCommand(newSeedCmd(), newMatchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
