package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

// ErrMissingArgument is returned when a value flag is given without its value.
var ErrMissingArgument = errors.New("missing argument for option")

const usageText = `Usage: vpn-client <command> [options]

Commands:
  status                 Show the current connection status and uptime
  up                     Start the connection
  down                   Stop the connection
  history [options]      List recorded lifecycle events
      -f, --from DATE    only events on or after DATE (YYYY-MM-DD)
      -t, --to DATE      only events on or before DATE (YYYY-MM-DD)
      -s, --status S     only events with status S (STARTING, UP, STOPPING, DOWN, FAILED)
          --sort ORDER   asc (default) or desc
  serve                  Run the HTTP API
  hash-password PASS     Print a bcrypt hash for [[server.auth.users]]

Global options:
      --config PATH      path to TOML config file (optional)
      --api-url URL      send commands to a running serve daemon (e.g. http://127.0.0.1:8080/api)
      --api-timeout D    request timeout for --api-url (default 10s)
      --ca-cert PATH     CA certificate trusted for an https --api-url
      --insecure         skip TLS verification for an https --api-url
      --api-user NAME    Basic auth user for --api-url
      --api-password PW  Basic auth password for --api-url
      --api-token TOKEN  Bearer token for --api-url`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot(command{global: &GlobalFlags{}})
	err := execute(ctx, root, os.Args[1:])
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute validates flag values the way the history command expects, then runs root.
func execute(ctx context.Context, root *cobra.Command, args []string) error {
	if err := checkMissingArguments(root, args); err != nil {
		return err
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// buildRoot creates the root command and its subcommands.
func buildRoot(vpnCommand command) *cobra.Command {
	historyFlags := &HistoryFlags{}
	serveFlags := &ServeFlags{}

	root := createRootCommand(vpnCommand.global)
	root.AddCommand(
		createStatusCommand(vpnCommand),
		createUpCommand(vpnCommand),
		createDownCommand(vpnCommand),
		createHistoryCommand(vpnCommand, historyFlags),
		createServeCommand(vpnCommand, serveFlags),
		createHashPasswordCommand(vpnCommand),
	)
	return root
}

// createRootCommand creates the root command. It prints the usage listing when no
// command is given and "Unknown command: <cmd>" for anything that is not a subcommand.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "vpn-client",
		Short:         "Track the lifecycle of a simulated VPN connection",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				_, err := fmt.Fprintln(out, usageText)
				return err
			}
			_, err := fmt.Fprintf(out, "Unknown command: %s\n", args[0])
			return err
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.FParseErrWhitelist.UnknownFlags = true
	root.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), usageText)
	})

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIURL, "api-url", "", "send commands to a running serve daemon")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout for --api-url")
	root.PersistentFlags().StringVar(&flags.CACert, "ca-cert", "", "CA certificate trusted for an https --api-url")
	root.PersistentFlags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification for an https --api-url")
	root.PersistentFlags().StringVar(&flags.APIUser, "api-user", "", "Basic auth user for --api-url")
	root.PersistentFlags().StringVar(&flags.APIPass, "api-password", "", "Basic auth password for --api-url")
	root.PersistentFlags().StringVar(&flags.APIToken, "api-token", "", "Bearer token for --api-url")
	return root
}

func createStatusCommand(vpnCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current connection status and uptime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnCommand.Status(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createUpCommand(vpnCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Start the connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnCommand.Up(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createDownCommand(vpnCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Stop the connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnCommand.Down(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createHistoryCommand(vpnCommand command, historyFlags *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded lifecycle events",
		Long: `List recorded lifecycle events, oldest first.

Examples:
  vpn-client history --from 2024-12-01 --to 2024-12-07
  vpn-client history -s FAILED --sort desc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkEmptyValues(cmd.Flags()); err != nil {
				return err
			}
			return vpnCommand.History(cmd.Context(), cmd.OutOrStdout(), *historyFlags)
		},
	}
	cmd.Flags().StringVarP(&historyFlags.From, "from", "f", "", "only events on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&historyFlags.To, "to", "t", "", "only events on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&historyFlags.Status, "status", "s", "", "only events with this status")
	cmd.Flags().StringVar(&historyFlags.Sort, "sort", "asc", "sort order: asc or desc")
	return cmd
}

func createServeCommand(vpnCommand command, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve status, up, down, history and metrics over HTTP.

Examples:
  vpn-client serve
  vpn-client serve --listen :9090 --base-path /vpn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnCommand.Serve(cmd.Context(), cmd.OutOrStdout(), *serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().StringVar(&serveFlags.BasePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func createHashPasswordCommand(vpnCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print a bcrypt hash for a server.auth user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnCommand.HashPassword(cmd.OutOrStdout(), args[0])
		},
	}
}

// checkMissingArguments rejects a value flag that is last or followed by another flag.
// pflag would otherwise take "--to" as the value of "--from".
// Unknown commands are left to the root command, which reports them.
func checkMissingArguments(root *cobra.Command, args []string) error {
	names := valueFlags(root)
	if name := commandName(names, args); name != "" && !isSubcommand(root, name) {
		return nil
	}
	for i, a := range args {
		if a == "--" {
			return nil
		}
		if strings.HasPrefix(a, "--") && strings.HasSuffix(a, "=") {
			if name, ok := names["--"+strings.TrimSuffix(strings.TrimPrefix(a, "--"), "=")]; ok {
				return fmt.Errorf("%w: %s", ErrMissingArgument, name)
			}
			continue
		}
		name, ok := names[a]
		if !ok {
			continue
		}
		if i+1 >= len(args) || (strings.HasPrefix(args[i+1], "-") && args[i+1] != "-") {
			return fmt.Errorf("%w: %s", ErrMissingArgument, name)
		}
	}
	return nil
}

// checkEmptyValues rejects a flag given explicitly with an empty value, as in --status "".
func checkEmptyValues(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || !f.Changed || f.NoOptDefVal != "" || f.Value.String() != "" {
			return
		}
		name := f.Name
		if f.Shorthand != "" {
			name = f.Shorthand
		}
		err = fmt.Errorf("%w: %s", ErrMissingArgument, name)
	})
	return err
}

// commandName returns the first positional argument, skipping the values of value flags.
func commandName(names map[string]string, args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			return ""
		case strings.HasPrefix(a, "-") && a != "-":
			if _, ok := names[a]; ok {
				i++
			}
		default:
			return a
		}
	}
	return ""
}

func isSubcommand(root *cobra.Command, name string) bool {
	for _, c := range root.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}
	return false
}

// valueFlags maps every spelling of a non-boolean flag to the name reported in errors,
// the shorthand when one exists.
func valueFlags(root *cobra.Command) map[string]string {
	out := make(map[string]string)
	add := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if f.NoOptDefVal != "" {
				return
			}
			name := f.Name
			if f.Shorthand != "" {
				name = f.Shorthand
				out["-"+f.Shorthand] = name
			}
			out["--"+f.Name] = name
		})
	}
	add(root.PersistentFlags())
	for _, c := range root.Commands() {
		add(c.Flags())
	}
	return out
}
