package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmuck/amulectl/internal/client"
	"github.com/danmuck/amulectl/internal/logging"
	"github.com/danmuck/amulectl/internal/observability"
	"github.com/danmuck/amulectl/internal/protocol/session"
)

var version = "dev"

type rootOptions struct {
	configPath string
	address    string
	password   string
	timeout    time.Duration
	metrics    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "amulectl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "amulectl",
		Short: "Remote control for aMule over the EC protocol",
		Long: `amulectl talks to a running amuled through its External Connections port.

Connection settings come from --config, then AMULECTL_ADDRESS and
AMULECTL_PASSWORD, then the --address and --password flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (TOML)")
	flags.StringVarP(&opts.address, "address", "a", "", "amuled EC address host:port")
	flags.StringVarP(&opts.password, "password", "p", "", "EC password")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline for one command")
	flags.StringVar(&opts.metrics, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	root.AddCommand(
		treeCmd(opts, "stats", "Show transfer statistics", (*client.Client).Stats),
		treeCmd(opts, "conn", "Show ed2k/kad connection state", (*client.Client).ConnectionState),
		treeCmd(opts, "stats-tree", "Show the full statistics tree", (*client.Client).StatsTree),
		treeCmd(opts, "server-info", "Show the server message log", (*client.Client).ServerInfo),
		treeCmd(opts, "uploads", "Show the upload queue", (*client.Client).UploadQueue),
		logCmd(opts),
		serversCmd(opts),
		sharedCmd(opts),
		downloadsCmd(opts),
		searchCmd(opts),
		downloadCmd(opts),
		addLinkCmd(opts),
		cancelCmd(opts),
		categoriesCmd(opts),
		configCmd(),
		versionCmd(),
	)
	return root
}

// run dials, authenticates and hands the client to fn under one deadline.
func (o *rootOptions) run(cmd *cobra.Command, timeout time.Duration, fn func(ctx context.Context, c *client.Client) error) error {
	cfg, err := loadCLIConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.address != "" {
		cfg.Session.Address = o.address
	}
	if o.password != "" {
		cfg.Password = o.password
	}

	logger := logging.Build(logging.Resolve(logging.ProfileRuntime, cfg.Log.Level, cfg.Log.JSON)).
		With().
		Str("component", "amulectl").
		Logger()
	observability.RegisterMetrics()
	if o.metrics != "" {
		m, err := observability.StartMetricsServer(o.metrics, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = m.Close(ctx)
		}()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	c, err := client.Dial(ctx, session.Options{
		Config:   cfg.Session,
		Password: cfg.Password,
		Logger:   &logger,
	}, client.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Session.Address, err)
	}
	defer c.Close()
	return fn(ctx, c)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
