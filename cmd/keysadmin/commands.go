package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"keysaccounting-api/internal/cache"
	"keysaccounting-api/internal/config"
	"keysaccounting-api/internal/ledger"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/repository"
	"keysaccounting-api/internal/resolve"
	"keysaccounting-api/internal/service"
	"keysaccounting-api/internal/sheet"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// app holds what every subcommand works on. It is opened before the
// subcommand runs; the caller closes it.
type app struct {
	grid      sheet.Grid
	cache     *cache.MemoryCache
	store     *repository.Store
	ledger    *ledger.Ledger
	directory *service.Directory
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.grid != nil {
		a.grid.Close()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "keysadmin",
		Short:         "Administer the key accounting tables",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	root.PersistentFlags().String("backend", "", "backend type: sqlite, postgres, mysql or memory (default from BACKEND_TYPE)")
	root.PersistentFlags().String("target", "", "SQLite path or server DSN (default from environment)")

	root.AddCommand(newInitCmd(a), newKeyCmd(a), newEmployeeCmd(a), newLoansCmd(a))
	return root
}

// open loads configuration, applies flag overrides and builds the store.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}

	backend, _ := cmd.Flags().GetString("backend")
	target, _ := cmd.Flags().GetString("target")
	if backend != "" {
		cfg.Backend.Type = backend
	}
	if target == "" {
		target = cfg.Backend.Target()
	}

	a.grid, err = sheet.Open(cfg.Backend.Type, target)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Type, err)
	}

	a.cache = cache.NewMemoryCache()
	a.store = repository.NewStore(a.grid, a.cache, repository.DefaultTTL()).WithLocation(loc)
	a.ledger = ledger.New(a.store, clockwork.NewRealClock())
	a.directory = service.NewDirectory(a.store, a.ledger, resolve.NewFuzzy())
	return nil
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the tables and write their header rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Setup(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tables ready.")
			return nil
		},
	}
}

func newKeyCmd(a *app) *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the Keys table",
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			keyType, _ := cmd.Flags().GetString("type")
			hardware, _ := cmd.Flags().GetString("hardware")
			if count < 0 {
				return fmt.Errorf("count must not be negative")
			}

			name := strings.TrimSpace(args[0])
			if _, err := a.store.KeyByName(cmd.Context(), name); err == nil {
				return fmt.Errorf("key %q already exists", name)
			}

			err := a.store.AppendKey(cmd.Context(), model.Key{
				Name:         name,
				Count:        count,
				KeyType:      keyType,
				HardwareType: hardware,
			})
			if err != nil {
				return fmt.Errorf("failed to add key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key %s added.\n", name)
			return nil
		},
	}
	addCmd.Flags().Int("count", 1, "number of identical copies")
	addCmd.Flags().String("type", "", "key type")
	addCmd.Flags().String("hardware", "", "hardware type")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List keys and whether they are out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.store.Keys(cmd.Context())
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No keys found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCOUNT\tTYPE\tHOLDER")
			for _, k := range keys {
				holder := "-"
				entry, onLoan, err := a.ledger.Outstanding(cmd.Context(), k.Name)
				if err != nil {
					return err
				}
				if onLoan {
					holder = entry.EmployeeName()
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", k.Name, k.Count, k.KeyType, holder)
			}
			return w.Flush()
		},
	}

	keyCmd.AddCommand(addCmd, listCmd)
	return keyCmd
}

func newEmployeeCmd(a *app) *cobra.Command {
	employeeCmd := &cobra.Command{
		Use:   "employee",
		Short: "Manage the Employees table",
	}

	addCmd := &cobra.Command{
		Use:   "add <telegram id> <first name> <last name> <phone>",
		Short: "Register an employee, optionally with roles",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, _ := cmd.Flags().GetStringSlice("roles")

			emp, err := a.directory.Register(cmd.Context(), model.Employee{
				TelegramID:  args[0],
				FirstName:   args[1],
				LastName:    args[2],
				PhoneNumber: args[3],
				Roles:       roles,
			})
			if err != nil {
				return fmt.Errorf("failed to register: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Employee %s registered with phone %s, roles [%s].\n",
				emp.FullName(), emp.PhoneNumber, model.FormatRoles(emp.Roles))
			return nil
		},
	}
	addCmd.Flags().StringSlice("roles", nil, "roles to grant (user, security, admin)")

	employeeCmd.AddCommand(addCmd)
	return employeeCmd
}

func newLoansCmd(a *app) *cobra.Command {
	loansCmd := &cobra.Command{
		Use:   "loans",
		Short: "Inspect the ledger",
	}

	outstandingCmd := &cobra.Command{
		Use:   "outstanding",
		Short: "List keys that have not been returned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, _ := cmd.Flags().GetDuration("older-than")

			var (
				entries []model.LoanEntry
				err     error
			)
			if threshold > 0 {
				entries, err = a.ledger.Overdue(cmd.Context(), threshold)
			} else {
				entries, err = a.ledger.OutstandingEntries(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printEntries(cmd, entries)
		},
	}
	outstandingCmd.Flags().Duration("older-than", 0, "only loans received longer ago than this, e.g. 72h")

	returnCmd := &cobra.Command{
		Use:   "return <key>",
		Short: "Record the return of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, ok, err := a.ledger.RecordReturn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Key %s is not out.\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key %s returned by %s.\n", args[0], entry.EmployeeName())
			return nil
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <key>",
		Short: "Show every loan of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.ledger.KeyHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printEntries(cmd, entries)
		},
	}

	loansCmd.AddCommand(outstandingCmd, returnCmd, historyCmd)
	return loansCmd
}

func printEntries(cmd *cobra.Command, entries []model.LoanEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No loans found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tKEY\tHOLDER\tPHONE\tRECEIVED\tRETURNED")
	for _, e := range entries {
		returned := "-"
		if e.TimeReturned != nil {
			returned = e.TimeReturned.Format(time.DateTime)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Row, e.KeyName, e.EmployeeName(), e.EmployeePhone, e.TimeReceived.Format(time.DateTime), returned)
	}
	return w.Flush()
}
