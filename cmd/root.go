package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tinkerbelle-io/tb-repair/internal/audit"
	"github.com/tinkerbelle-io/tb-repair/internal/autorepair"
	"github.com/tinkerbelle-io/tb-repair/internal/config"
	"github.com/tinkerbelle-io/tb-repair/internal/diagnose"
	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
	"github.com/tinkerbelle-io/tb-repair/internal/logging"
)

// rootFlags holds the raw flag values. They override the config file
// and environment only when set on the command line.
type rootFlags struct {
	config     string
	endpoint   string
	jobDelay   float64
	reason     string
	dryRun     bool
	logLevel   string
	auditLog   string
	kubeNodes  bool
	kubeconfig string
	timeout    time.Duration
}

func newRootCmd(version string) *cobra.Command {
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "tb-repair",
		Short: "Automatic repair of instances on failed cluster nodes",
		Long: `tb-repair runs one reconciliation pass over every instance of the cluster.
It reads the auto-repair tags on each instance, follows up on repair jobs
submitted by earlier passes, and submits a new repair job for instances
whose nodes have failed when the tag policy allows it.`,
		Args:         noArgs,
		SilenceUsage: true,
		Version:      version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd.Flags(), os.LookupEnv)
			if err != nil {
				return err
			}
			logging.Setup(cmd.ErrOrStderr(), cfg.LogLevel)
			return runPass(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("tb-repair %s\n", version))

	f.bind(cmd.Flags())
	cmd.AddCommand(newVersionCmd(), newVerifyAuditCmd())
	return cmd
}

func (f *rootFlags) bind(flags *pflag.FlagSet) {
	flags.StringVar(&f.config, "config", "", "Config file path, YAML or .toml (default: "+config.DefaultPath+")")
	flags.StringVar(&f.endpoint, "endpoint", "", "Job service socket path or ssh://user@host[:port]/path (env: TB_REPAIR_ENDPOINT)")
	flags.Float64Var(&f.jobDelay, "job-delay", 10, "Seconds a repair job waits before its first opcode, 0 disables (env: TB_REPAIR_JOB_DELAY)")
	flags.StringVar(&f.reason, "reason", "", "Reason attached to submitted jobs (env: TB_REPAIR_REASON)")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Report what would be done without changing anything (env: TB_REPAIR_DRY_RUN)")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&f.auditLog, "audit-log", "", "Audit log path, empty disables (env: TB_REPAIR_AUDIT_LOG)")
	flags.BoolVar(&f.kubeNodes, "kube-nodes", false, "Mark nodes whose Kubernetes Node is not Ready as offline")
	flags.StringVar(&f.kubeconfig, "kubeconfig", "", "Kubeconfig for --kube-nodes (env: KUBECONFIG, default: in-cluster)")
	flags.DurationVar(&f.timeout, "timeout", 60*time.Second, "Timeout of a single job service call")
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.New("this program doesn't take any arguments")
	}
	return nil
}

// resolve layers defaults, the config file, the environment and the
// flags that were set, then validates the result.
func (f *rootFlags) resolve(flags *pflag.FlagSet, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if flags.Changed("endpoint") {
		cfg.Endpoint = f.endpoint
	}
	if flags.Changed("job-delay") {
		cfg.JobDelay = f.jobDelay
	}
	if flags.Changed("reason") {
		cfg.Reason = f.reason
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = f.dryRun
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("audit-log") {
		cfg.Audit.Path = f.auditLog
	}
	if flags.Changed("kube-nodes") {
		cfg.Kubernetes.Enabled = f.kubeNodes
	}
	if flags.Changed("kubeconfig") {
		cfg.Kubernetes.Kubeconfig = f.kubeconfig
	}
	if flags.Changed("timeout") {
		cfg.Timeout = f.timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runPass performs one reconciliation pass and writes the report to out.
func runPass(ctx context.Context, out io.Writer, cfg *config.Config) error {
	client, err := jobs.Dial(ctx, cfg.Endpoint, jobs.Options{
		Timeout:      cfg.Timeout,
		WaitTimeout:  cfg.WaitTimeout,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	cluster, err := inventory.NewProvider(client).Load(ctx)
	if err != nil {
		return err
	}

	if cfg.Kubernetes.Enabled {
		kube, err := inventory.KubeClientset(cfg.Kubernetes.Kubeconfig)
		if err != nil {
			return err
		}
		if _, err := inventory.NewKubeNodeOverlay(kube).Apply(ctx, cluster); err != nil {
			return err
		}
	}

	opts := autorepair.Options{
		DryRun:   cfg.DryRun,
		JobDelay: cfg.JobDelay,
		Reason:   cfg.Reason,
		Out:      out,
	}
	if cfg.Audit.Path != "" {
		auditLog, err := audit.NewAuditLogger(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer auditLog.Close()
		opts.Recorder = auditLog
	}

	summary, err := autorepair.NewController(client, diagnose.New(), opts).Run(ctx, cluster)
	if err != nil {
		return err
	}
	return summary.Render(out)
}

// Execute runs the root command and exits non-zero on any error.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(version).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
