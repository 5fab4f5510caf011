package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/admin"
	"tradesim/internal/db"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// hashPasswordCmd prints a bcrypt hash for a password given as an argument
// or on stdin.
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for a password",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordArg(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

func passwordArg(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	return password, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDSN(); err != nil {
			return err
		}
		if err := db.Migrate(dsn); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default one step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDSN(); err != nil {
			return err
		}
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("steps must be a positive integer")
			}
			steps = n
		}
		if err := db.MigrateDown(dsn, steps); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDSN(); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

func printVersion(cmd *cobra.Command) error {
	v, dirty, err := db.MigrationVersion(dsn)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, state)
	return nil
}

var (
	adminUsername string
	adminPassword string
	adminRole     string
	adminRights   []string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create a console admin or owner account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDSN(); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		pool, err := db.NewPool(ctx, dsn)
		if err != nil {
			return err
		}
		defer pool.Close()
		a, err := admin.NewStore(pool).Create(ctx, adminUsername, adminPassword, adminRole, adminRights)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (id %d, rights %s)\n", a.Role, a.Username, a.ID, strings.Join(a.Rights, ","))
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "login name")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "password, at least 8 characters")
	createAdminCmd.Flags().StringVar(&adminRole, "role", admin.RoleAdmin, "owner or admin")
	createAdminCmd.Flags().StringSliceVar(&adminRights, "rights", nil, "comma separated: funding,orders,loans,users")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("password")
}
