package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/fin-labs/ledgerd/internal/cliconfig"
	"github.com/fin-labs/ledgerd/internal/sim"
	"github.com/fin-labs/ledgerd/internal/watcher"
	"github.com/fin-labs/ledgerd/pkg/ledger"
)

const longHelp = `ledgerd is a small persistent ledger: named accounts with integer balances,
stored one record per account with atomic file replacement, safe for many
concurrent operations in one process, with every mutation appended to a
pipe-separated audit trail.

Balances live under the data directory (default ./accounts) together with
transactions.log and the regenerated central_log.txt listing. Configure via
flags, LEDGERD_* environment variables, or ~/.ledgerd/config.toml.`

var exampleUsage = strings.TrimSpace(`
  ledgerd create Alice 1000
  ledgerd transfer Alice Bob 300
  ledgerd balance Alice
  ledgerd simulate --sim-users 5 --sim-ops 20
  ledgerd watch --data-dir ./accounts
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// parseAmount rejects anything that is not a positive integer before the
// engine sees it.
func parseAmount(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not an integer", arg)
	}
	if n <= 0 {
		return 0, fmt.Errorf("amount must be a positive integer, got %d", n)
	}
	return n, nil
}

func parseInitialBalance(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("initial balance %q is not an integer", arg)
	}
	if n < 0 {
		return 0, fmt.Errorf("initial balance must not be negative, got %d", n)
	}
	return n, nil
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	var password string

	log := cliconfig.Logger()

	var led *ledger.Ledger
	var gate *ledger.Gate

	root := &cobra.Command{
		Use:           "ledgerd",
		Short:         "Persistent account ledger with an append-only audit trail",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default ~/.ledgerd/config.toml), then
			// env, then flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level := zerolog.InfoLevel
			if cfg.Verbose {
				level = zerolog.DebugLevel
			}
			log = log.Level(level)

			var err error
			led, err = ledger.Open(cfg.DataDir, ledger.WithLogger(log))
			if err != nil {
				return err
			}
			if cfg.RequirePassword {
				gate = ledger.NewGate(led)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.ledgerd/config.toml)")
	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding account records and the audit log")
	root.PersistentFlags().StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "snapshot listing path (defaults to <data-dir>/central_log.txt)")
	root.PersistentFlags().BoolVar(&cfg.RequirePassword, "require-password", cfg.RequirePassword, "protect operations with per-account passwords")
	root.PersistentFlags().BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable debug logging")
	root.PersistentFlags().StringVar(&password, "password", "", "account password (with --require-password)")

	createCmd := &cobra.Command{
		Use:   "create <account> <initial-balance>",
		Short: "Create a new account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := parseInitialBalance(args[1])
			if err != nil {
				return err
			}
			if gate != nil {
				err = gate.Create(args[0], initial, password)
			} else {
				err = led.Create(args[0], initial)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Account %s created with initial balance %d.\n", args[0], initial)
			return nil
		},
	}

	depositCmd := &cobra.Command{
		Use:   "deposit <account> <amount>",
		Short: "Deposit into an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			var balance int64
			if gate != nil {
				balance, err = gate.Deposit(args[0], amount, password)
			} else {
				balance, err = led.Deposit(args[0], amount)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Deposited %d to %s. New balance: %d\n", amount, args[0], balance)
			return nil
		},
	}

	withdrawCmd := &cobra.Command{
		Use:   "withdraw <account> <amount>",
		Short: "Withdraw from an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			var balance int64
			if gate != nil {
				balance, err = gate.Withdraw(args[0], amount, password)
			} else {
				balance, err = led.Withdraw(args[0], amount)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Withdrew %d from %s. New balance: %d\n", amount, args[0], balance)
			return nil
		},
	}

	transferCmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Transfer between two accounts",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			if gate != nil {
				err = gate.Transfer(args[0], args[1], amount, password)
			} else {
				err = led.Transfer(args[0], args[1], amount)
			}
			if err != nil {
				if errors.Is(err, ledger.ErrUnrecovered) {
					return fmt.Errorf("balances need manual reconciliation: %w", err)
				}
				return err
			}
			fmt.Printf("Transferred %d from %s to %s.\n", amount, args[0], args[1])
			return nil
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account's current balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var balance int64
			var err error
			if gate != nil {
				balance, err = gate.View(args[0], password)
			} else {
				balance, err = led.View(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("Account %s Balance: %d\n", args[0], balance)
			return nil
		},
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write a listing of every account's balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := led.WriteSnapshotFile(cfg.SnapshotPath); err != nil {
				return err
			}
			fmt.Printf("Central log generated at: %s\n", cfg.SnapshotPath)
			return nil
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the snapshot listing current as records change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info().Msg("received signal, stopping...")
				cancel()
			}()

			w := watcher.New(led, cfg.DataDir, cfg.SnapshotPath, cfg.Debounce, log)
			return w.Run(ctx)
		},
	}
	watchCmd.Flags().DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "delay after a record change before rewriting the snapshot")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a concurrent random workload against the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			simCfg := sim.DefaultConfig()
			simCfg.Users = cfg.SimUsers
			simCfg.OpsPerUser = cfg.SimOps
			simCfg.InitialBalance = cfg.SimInitialBalance

			if err := sim.Run(ctx, led, simCfg, log); err != nil {
				return err
			}
			if err := led.WriteSnapshotFile(cfg.SnapshotPath); err != nil {
				return err
			}
			fmt.Printf("Central log generated at: %s\n", cfg.SnapshotPath)
			return nil
		},
	}
	simulateCmd.Flags().IntVar(&cfg.SimUsers, "sim-users", cfg.SimUsers, "number of concurrent user accounts")
	simulateCmd.Flags().IntVar(&cfg.SimOps, "sim-ops", cfg.SimOps, "operations per user")
	simulateCmd.Flags().Int64Var(&cfg.SimInitialBalance, "sim-initial-balance", cfg.SimInitialBalance, "starting balance per simulated account")

	root.AddCommand(createCmd, depositCmd, withdrawCmd, transferCmd, balanceCmd, snapshotCmd, watchCmd, simulateCmd)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("ledgerd")
		os.Exit(1)
	}
}
