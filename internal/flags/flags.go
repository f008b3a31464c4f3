// Package flags manages command-line flags and environment variables for
// updrift configuration. Every flag can also be set through an UPDRIFT_*
// environment variable; explicit flags win.
package flags

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DockerAPIMinVersion specifies the minimum Docker API version required by
// updrift. It ensures compatibility with the Docker client.
const DockerAPIMinVersion string = "1.44"

// defaultRetries defines the default number of whole-batch attempts when the
// registry reports itself unavailable.
const defaultRetries = 3

// defaultRetryDelaySeconds defines the default pause before a batch retry.
const defaultRetryDelaySeconds = 30

// errInvalidLogFormat indicates an invalid log format was specified.
var errInvalidLogFormat = errors.New("invalid log format specified")

// errInvalidLogLevel indicates an invalid log level was specified.
var errInvalidLogLevel = errors.New("invalid log level specified")

// errInvalidOutputFormat indicates an unknown report output format.
var errInvalidOutputFormat = errors.New("invalid output format specified")

// errSetEnvFailed indicates a failure to set an environment variable.
var errSetEnvFailed = errors.New("failed to set environment variable")

// errGetFlagFailed indicates a failure to read a flag's value.
var errGetFlagFailed = errors.New("failed to get flag value")

// RegisterDockerFlags adds flags used directly by the Docker API client to the
// root command. These flags configure the Docker connection settings.
func RegisterDockerFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.StringP("host", "H", envString("DOCKER_HOST"), "daemon socket to connect to")
	flags.BoolP("tlsverify", "v", envBool("DOCKER_TLS_VERIFY"), "use TLS and verify the remote")
	flags.StringP(
		"api-version",
		"a",
		envString("DOCKER_API_VERSION"),
		"api version to use by docker client",
	)
}

// RegisterScanFlags adds the flags controlling tag handling, pacing and report
// output to the root command.
func RegisterScanFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringP(
		"include",
		"i",
		envString("UPDRIFT_INCLUDE"),
		"Regular expression a tag must match (anchored at the start); capture groups form the sort key")

	flags.StringP(
		"exclude",
		"x",
		envString("UPDRIFT_EXCLUDE"),
		"Regular expression excluding matching tags outright")

	flags.BoolP(
		"numeric-tags",
		"n",
		envBool("UPDRIFT_NUMERIC_TAGS"),
		"Compare all-digit sort key components as numbers instead of strings")

	flags.StringP(
		"link-template",
		"L",
		envString("UPDRIFT_LINK_TEMPLATE"),
		"Template expanded against the winning tag match, e.g. a release notes URL")

	flags.BoolP(
		"ignore-labels",
		"",
		envBool("UPDRIFT_IGNORE_LABELS"),
		"Ignore per-unit updrift.* label overrides")

	flags.DurationP(
		"delay",
		"d",
		envDuration("UPDRIFT_DELAY"),
		"Pause between successive unit inspections, to stay under registry rate limits")

	flags.DurationP(
		"retry-delay",
		"",
		envDuration("UPDRIFT_RETRY_DELAY"),
		"Pause before retrying a batch after the registry became unavailable")

	flags.IntP(
		"retries",
		"r",
		envInt("UPDRIFT_RETRIES"),
		"Maximum number of whole-batch attempts when the registry is unavailable")

	flags.StringP(
		"output",
		"o",
		envString("UPDRIFT_OUTPUT"),
		"Report format. Possible values: table, json")

	flags.BoolP(
		"no-restart-check",
		"",
		envBool("UPDRIFT_NO_RESTART_CHECK"),
		"Skip recomputing compose config hashes for the restart verdict")

	flags.StringP(
		"tag-policy",
		"",
		envString("UPDRIFT_TAG_POLICY"),
		"How the running tag compares against the biggest remote tag. Possible values: greater, differ (default depends on the subcommand)")

	flags.StringP(
		"log-format",
		"l",
		envString("UPDRIFT_LOG_FORMAT"),
		"Sets what logging format to use for console output. Possible values: Auto, LogFmt, Pretty, JSON",
	)

	flags.StringP(
		"log-level",
		"",
		envString("UPDRIFT_LOG_LEVEL"),
		"The maximum log level that will be written to STDERR. Possible values: panic, fatal, error, warn, info, debug or trace")

	// https://no-color.org/
	flags.BoolP(
		"no-color",
		"",
		viper.IsSet("NO_COLOR"),
		"Disable ANSI color escape codes in log output")
}

// SetDefaults configures default values for environment variables. It ensures
// consistent fallback behavior when flags or environment variables are unset.
func SetDefaults() {
	viper.AutomaticEnv()
	viper.SetDefault("DOCKER_HOST", "unix:///var/run/docker.sock")
	viper.SetDefault("DOCKER_API_VERSION", DockerAPIMinVersion)
	viper.SetDefault("UPDRIFT_RETRIES", defaultRetries)
	viper.SetDefault("UPDRIFT_RETRY_DELAY", time.Second*defaultRetryDelaySeconds)
	viper.SetDefault("UPDRIFT_OUTPUT", "table")
	viper.SetDefault("UPDRIFT_LOG_LEVEL", "info")
	viper.SetDefault("UPDRIFT_LOG_FORMAT", "auto")
}

// EnvConfig sets environment variables based on Docker-related flags. It
// configures the Docker client's environment, returning an error if flag
// retrieval fails.
func EnvConfig(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()

	host, err := flags.GetString("host")
	if err != nil {
		return fmt.Errorf("%w: %w", errGetFlagFailed, err)
	}

	tls, err := flags.GetBool("tlsverify")
	if err != nil {
		return fmt.Errorf("%w: %w", errGetFlagFailed, err)
	}

	version, err := flags.GetString("api-version")
	if err != nil {
		return fmt.Errorf("%w: %w", errGetFlagFailed, err)
	}

	if err := setEnvOptStr("DOCKER_HOST", host); err != nil {
		return err
	}

	if err := setEnvOptBool("DOCKER_TLS_VERIFY", tls); err != nil {
		return err
	}

	return setEnvOptStr("DOCKER_API_VERSION", version)
}

// OutputFormat validates and returns the report output format flag.
func OutputFormat(flags *pflag.FlagSet) (string, error) {
	format, err := flags.GetString("output")
	if err != nil {
		return "", fmt.Errorf("%w: %w", errGetFlagFailed, err)
	}

	format = strings.ToLower(format)
	if format != "table" && format != "json" {
		return "", fmt.Errorf("%w: %s", errInvalidOutputFormat, format)
	}

	return format, nil
}

// SetupLogging configures the global logger based on log-related flags. It
// sets the log format and level, returning an error for invalid
// configurations.
func SetupLogging(flags *pflag.FlagSet) error {
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return fmt.Errorf("%w: %w", errGetFlagFailed, err)
	}

	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return fmt.Errorf("%w: %w", errGetFlagFailed, err)
	}

	if err := configureLogFormat(logFormat, noColor); err != nil {
		return err
	}

	rawLogLevel, err := flags.GetString("log-level")
	if err != nil {
		return fmt.Errorf("%w: %w", errGetFlagFailed, err)
	}

	logLevel, err := logrus.ParseLevel(rawLogLevel)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	logrus.SetLevel(logLevel)

	return nil
}

// configureLogFormat sets the logrus formatter based on the specified format
// and color preference. It returns an error if the format is invalid.
func configureLogFormat(logFormat string, noColor bool) error {
	switch strings.ToLower(logFormat) {
	case "auto":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:             noColor,
			EnvironmentOverrideColors: true,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "logfmt":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	case "pretty":
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			FullTimestamp: false,
		})
	default:
		return fmt.Errorf("%w: %s", errInvalidLogFormat, logFormat)
	}

	return nil
}

// setEnvOptStr sets an environment variable to a value unless it is empty or
// already set to that value.
func setEnvOptStr(env string, opt string) error {
	if opt == "" || opt == os.Getenv(env) {
		return nil
	}

	if err := os.Setenv(env, opt); err != nil {
		return fmt.Errorf("%w: %s: %w", errSetEnvFailed, env, err)
	}

	return nil
}

// setEnvOptBool sets a boolean environment variable to "1" when enabled.
func setEnvOptBool(env string, opt bool) error {
	if opt {
		return setEnvOptStr(env, "1")
	}

	return nil
}

// envString retrieves a string value from an environment variable via Viper.
// It binds the key to the environment and returns its value.
func envString(key string) string {
	viper.MustBindEnv(key)

	return viper.GetString(key)
}

// envInt retrieves an integer value from an environment variable via Viper.
// It binds the key to the environment and returns its value.
func envInt(key string) int {
	viper.MustBindEnv(key)

	return viper.GetInt(key)
}

// envBool retrieves a boolean value from an environment variable via Viper.
// It binds the key to the environment and returns its value.
func envBool(key string) bool {
	viper.MustBindEnv(key)

	return viper.GetBool(key)
}

// envDuration retrieves a duration value from an environment variable via
// Viper. It binds the key to the environment and returns its value.
func envDuration(key string) time.Duration {
	viper.MustBindEnv(key)

	return viper.GetDuration(key)
}
