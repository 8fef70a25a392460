package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dreamware/groupsync/internal/config"
	"github.com/dreamware/groupsync/internal/coordinator"
	"github.com/dreamware/groupsync/internal/executor"
	"github.com/dreamware/groupsync/internal/logging"
	"github.com/dreamware/groupsync/internal/metrics"
)

// cli carries state shared by every subcommand of one invocation.
type cli struct {
	v       *viper.Viper
	out     io.Writer
	errOut  io.Writer
	cfgFile string
}

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"hosts":           "hosts",
	"hosts-file":      "hosts_file",
	"simulate":        "executor.simulate",
	"max-retries":     "executor.max_retries",
	"retry-timeout":   "executor.retry_timeout",
	"request-timeout": "executor.request_timeout",
	"rollback-store":  "rollback.type",
	"rollback-file":   "rollback.path",
	"redis-addr":      "rollback.redis.addr",
	"postgres-dsn":    "rollback.postgres.dsn",
	"etcd-endpoints":  "rollback.etcd.endpoints",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"metrics-file":    "metrics.textfile",
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "groupctl",
		Short: "Keep a group consistent across a fleet of hosts",
		Long: `groupctl creates, deletes and inspects a named group on every
configured host. A create or delete either lands on all hosts or is
rolled back; hosts that cannot be rolled back are recorded and retried
before the next operation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "Path to a config file (yaml, json or toml)")
	pf.StringSlice("hosts", nil, "Comma separated hosts; overrides --hosts-file")
	pf.String("hosts-file", "hosts.txt", "File listing one host per line")
	pf.Bool("simulate", false, "Replace host calls with random outcomes")
	pf.Int("max-retries", 2, "Attempts per host call")
	pf.Duration("retry-timeout", time.Second, "Initial delay between attempts, doubled after each")
	pf.Duration("request-timeout", time.Second, "Timeout of a single HTTP request")
	pf.String("rollback-store", "file", "Where pending rollbacks are kept: file, memory, redis, postgres or etcd")
	pf.String("rollback-file", "rollback.txt", "Rollback record path for the file store")
	pf.String("redis-addr", "127.0.0.1:6379", "Redis address for the redis store")
	pf.String("postgres-dsn", "", "Connection string for the postgres store")
	pf.StringSlice("etcd-endpoints", []string{"127.0.0.1:2379"}, "Endpoints for the etcd store")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("metrics-file", "", "Write prometheus metrics to this textfile on exit")
	for flag, key := range flagKeys {
		_ = c.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(c.newCreateCmd())
	root.AddCommand(c.newDeleteCmd())
	root.AddCommand(c.newStatusCmd())
	root.AddCommand(c.newRollbackCmd())
	root.AddCommand(c.newHealthCmd())
	return root
}

// withConfig loads configuration and a logger and runs fn. Metrics are
// written afterwards when a textfile is configured, whether or not fn
// failed.
func (c *cli) withConfig(fn func(*config.Config, *slog.Logger) error) error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log, c.errOut)
	if err != nil {
		return err
	}
	if cfg.Metrics.Textfile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
				logger.Warn("write metrics textfile", "path", cfg.Metrics.Textfile, "err", werr)
			}
		}()
	}
	return fn(cfg, logger)
}

// withCoordinator builds a coordinator from configuration and runs fn.
func (c *cli) withCoordinator(ctx context.Context, fn func(context.Context, *coordinator.Coordinator) error) error {
	return c.withConfig(func(cfg *config.Config, logger *slog.Logger) error {
		hosts, err := cfg.ResolveHosts()
		if err != nil {
			return err
		}
		exec, err := executor.New(cfg.ExecutorOptions(), logger)
		if err != nil {
			return err
		}
		store, closeStore, err := cfg.OpenStore(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeStore(); cerr != nil {
				logger.Warn("close rollback store", "err", cerr)
			}
		}()

		coord, err := coordinator.New(hosts, exec, store, coordinator.WithLogger(logger))
		if err != nil {
			return err
		}
		logger.Debug("coordinator ready", "hosts", len(hosts), "simulate", cfg.Executor.Simulate, "store", cfg.Rollback.Type)
		return fn(ctx, coord)
	})
}

// groupArg returns the group named positionally or with --group.
func groupArg(cmd *cobra.Command, args []string) (string, error) {
	flag, _ := cmd.Flags().GetString("group")
	switch {
	case len(args) == 1 && flag != "" && flag != args[0]:
		return "", fmt.Errorf("group given twice: %q and --group %q", args[0], flag)
	case len(args) == 1:
		return args[0], nil
	case flag != "":
		return flag, nil
	default:
		return "", fmt.Errorf("a group id is required")
	}
}
