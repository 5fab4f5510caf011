package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var dsn string

var rootCmd = &cobra.Command{
	Use:           "tradesimctl",
	Short:         "Operator tooling for the tradesim API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dsn == "" {
			dsn = os.Getenv("DB_DSN")
		}
		return nil
	},
}

func init() {
	_ = godotenv.Load()
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres DSN (defaults to DB_DSN)")
	rootCmd.AddCommand(hashPasswordCmd, migrateCmd, createAdminCmd)
}

func requireDSN() error {
	if dsn == "" {
		return fmt.Errorf("no database: pass --dsn or set DB_DSN")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
