// Package cmd contains the command-line interface definitions and execution
// logic for updrift. The root command only carries shared flags; the compose
// and swarm subcommands wire up their unit provider and run the same
// inspection pipeline.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/updrift/updrift/internal/actions"
	"github.com/updrift/updrift/internal/flags"
	"github.com/updrift/updrift/internal/meta"
	"github.com/updrift/updrift/internal/output"
	"github.com/updrift/updrift/pkg/classify"
	"github.com/updrift/updrift/pkg/compose"
	"github.com/updrift/updrift/pkg/docker"
	"github.com/updrift/updrift/pkg/filters"
	"github.com/updrift/updrift/pkg/registry"
	"github.com/updrift/updrift/pkg/types"
)

// errInvalidTagPolicy indicates an unknown --tag-policy value.
var errInvalidTagPolicy = errors.New("invalid tag policy specified")

// rootCmd represents the root command for the updrift CLI, serving as the
// entry point for the compose and swarm subcommands.
var rootCmd = NewRootCommand()

// NewRootCommand creates and configures the root command for the updrift CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "updrift",
		Short:             "Reports pending updates for Docker Compose and Swarm workloads",
		Long:              "\nupdrift inspects running Docker Compose containers and Swarm services and reports,\nper workload, whether a restart, an image pull, or a tag update is due.",
		Version:           meta.Version,
		PersistentPreRun:  preRun,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	cmd.AddCommand(newComposeCommand(), newSwarmCommand())

	return cmd
}

// init registers command-line flags for the root command during package
// initialization.
func init() {
	flags.SetDefaults()
	flags.RegisterDockerFlags(rootCmd)
	flags.RegisterScanFlags(rootCmd)
}

// Execute runs the root command and manages any errors encountered during its
// execution. It is the primary entry point for the updrift CLI, called from
// main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("Failed to execute root command")
	}
}

// newComposeCommand builds the subcommand inspecting running Compose-managed
// containers. Positional arguments restrict the scan to specific container
// IDs.
func newComposeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compose [container-id...]",
		Short: "Inspect running Docker Compose containers",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := docker.NewEngine()
			if err != nil {
				return err
			}

			// Compose has no authoritative remote version pin, so any tag
			// change counts as an update.
			return runScan(cmd, args, scanConfig{
				provider:      docker.NewComposeProvider(engine),
				defaultPolicy: classify.TagPolicyDiffer,
				restartCheck:  true,
			})
		},
	}
}

// newSwarmCommand builds the subcommand inspecting swarm services.
func newSwarmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "swarm [service-id...]",
		Short: "Inspect Docker Swarm services",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := docker.NewEngine()
			if err != nil {
				return err
			}

			return runScan(cmd, args, scanConfig{
				provider:      docker.NewSwarmProvider(engine),
				defaultPolicy: classify.TagPolicyGreater,
			})
		},
	}
}

// scanConfig carries the per-subcommand pieces of the pipeline: the unit
// provider and the pipeline-specific defaults.
type scanConfig struct {
	provider      types.UnitProvider
	defaultPolicy classify.TagPolicy
	restartCheck  bool
}

// preRun configures logging and the Docker environment before any subcommand
// executes. Failures here are configuration errors and terminate the process.
func preRun(cmd *cobra.Command, _ []string) {
	flagsSet := cmd.Root().PersistentFlags()

	if err := flags.SetupLogging(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logging")
	}

	if err := flags.EnvConfig(cmd.Root()); err != nil {
		logrus.WithError(err).Fatal("Failed to configure Docker environment")
	}
}

// runScan executes the shared inspection pipeline: resolve configuration from
// flags, load registry credentials, scan all units, and write the report to
// stdout.
func runScan(cmd *cobra.Command, args []string, config scanConfig) error {
	flagsSet := cmd.Root().PersistentFlags()

	format, err := flags.OutputFormat(flagsSet)
	if err != nil {
		return err
	}

	policy, err := tagPolicy(flagsSet.Lookup("tag-policy").Value.String(), config.defaultPolicy)
	if err != nil {
		return err
	}

	opts, err := scanOptions(cmd, args, config, policy)
	if err != nil {
		return err
	}

	// Credential store problems surface before any unit is touched.
	credentials, err := registry.LoadCredentials("")
	if err != nil {
		return err
	}

	var hasher types.ComposeHasher
	if opts.RestartCheck {
		hasher = compose.NewHasher()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	records, err := actions.Scan(ctx, config.provider, registry.NewClient(credentials), hasher, opts)
	if err != nil {
		return err
	}

	return output.Write(os.Stdout, format, records)
}

// scanOptions assembles the pipeline options from the shared flags and the
// positional unit IDs.
func scanOptions(
	cmd *cobra.Command,
	args []string,
	config scanConfig,
	policy classify.TagPolicy,
) (actions.ScanOptions, error) {
	flagsSet := cmd.Root().PersistentFlags()

	var opts actions.ScanOptions
	var err error

	for _, id := range args {
		opts.Units = append(opts.Units, types.UnitID(id))
	}

	if opts.Delay, err = flagsSet.GetDuration("delay"); err != nil {
		return opts, fmt.Errorf("failed to read delay flag: %w", err)
	}

	if opts.RetryDelay, err = flagsSet.GetDuration("retry-delay"); err != nil {
		return opts, fmt.Errorf("failed to read retry-delay flag: %w", err)
	}

	if opts.MaxAttempts, err = flagsSet.GetInt("retries"); err != nil {
		return opts, fmt.Errorf("failed to read retries flag: %w", err)
	}

	opts.Defaults.Include, _ = flagsSet.GetString("include")
	opts.Defaults.Exclude, _ = flagsSet.GetString("exclude")
	opts.Defaults.Numeric, _ = flagsSet.GetBool("numeric-tags")
	opts.Defaults.LinkTemplate, _ = flagsSet.GetString("link-template")
	opts.Defaults.IgnoreOverrides, _ = flagsSet.GetBool("ignore-labels")

	// Global defaults must be well-formed; per-unit overrides merely fall
	// back when they are not.
	if _, err := filters.Resolve(opts.Defaults, nil); err != nil {
		return opts, err
	}

	opts.TagPolicy = policy

	noRestartCheck, _ := flagsSet.GetBool("no-restart-check")
	opts.RestartCheck = config.restartCheck && !noRestartCheck

	return opts, nil
}

// tagPolicy resolves the --tag-policy flag against the subcommand's default.
func tagPolicy(value string, fallback classify.TagPolicy) (classify.TagPolicy, error) {
	switch strings.ToLower(value) {
	case "":
		return fallback, nil
	case "greater":
		return classify.TagPolicyGreater, nil
	case "differ":
		return classify.TagPolicyDiffer, nil
	default:
		return fallback, fmt.Errorf("%w: %s", errInvalidTagPolicy, value)
	}
}
