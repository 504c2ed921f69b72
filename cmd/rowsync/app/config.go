package app

import (
	stderrors "errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/retry"
)

// EnvPrefix prefixes every environment variable read into Config.
const EnvPrefix = "ROWSYNC"

// DefaultJobsFile is read when neither --jobs nor jobs_file is set.
const DefaultJobsFile = "rowsync.jobs.yaml"

// Config holds the application configuration loaded from flags, the
// environment, .env files, and the config file.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	ConfigFile string
	JobsFile   string

	// Engine defaults, overridable per command
	ChunkSize    int
	BatchPause   time.Duration
	PageSize     int
	Retry        retry.Policy
	Timeout      time.Duration
	DryRun       bool
	FoldIdentity bool

	AWSRegion string

	// Metrics are pushed to Pushgateway and/or written to Textfile after each job.
	Pushgateway string
	Textfile    string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration in order of precedence:
//  1. Environment variables (ROWSYNC_CHUNK_SIZE, ROWSYNC_RETRY_MAX_ATTEMPTS, ...)
//  2. .env and .env.local
//  3. Config file (path, or ~/.rowsync.yaml and ./.rowsync.yaml)
//  4. Defaults
//
// Command-line flags are applied on top by the commands.
func LoadConfig(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "failed to read "+path, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".rowsync")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.NewConfigError("config", "failed to read config file", err)
			}
		}
	}

	cfg := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),
		JobsFile:   v.GetString("jobs_file"),

		ChunkSize:  v.GetInt("chunk_size"),
		BatchPause: v.GetDuration("batch_pause"),
		PageSize:   v.GetInt("page_size"),
		Retry: retry.Policy{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			Backoff:     v.GetDuration("retry.backoff"),
			Exponential: v.GetBool("retry.exponential"),
			MaxBackoff:  v.GetDuration("retry.max_backoff"),
		},
		Timeout:      v.GetDuration("timeout"),
		DryRun:       v.GetBool("dry_run"),
		FoldIdentity: v.GetBool("fold_identity"),

		AWSRegion: v.GetString("aws.region"),

		Pushgateway: v.GetString("metrics.pushgateway"),
		Textfile:    v.GetString("metrics.textfile"),

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
		LogOutput: v.GetString("log.output"),
	}
	// Plain LOG_* variables are honored as well, matching pkg/logging.
	if cfg.LogLevel == "" {
		cfg.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", "auto")
	}
	if cfg.LogOutput == "" {
		cfg.LogOutput = getEnvOrDefault("LOG_OUTPUT", "stderr")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("jobs_file", DefaultJobsFile)
	v.SetDefault("chunk_size", constants.DefaultChunkSize)
	v.SetDefault("batch_pause", constants.DefaultBatchPause)
	v.SetDefault("page_size", constants.DefaultPageSize)
	v.SetDefault("retry.max_attempts", constants.DefaultMaxAttempts)
	v.SetDefault("retry.backoff", constants.DefaultRetryBackoff)
	v.SetDefault("retry.exponential", false)
	v.SetDefault("retry.max_backoff", constants.MaxRetryBackoff)
	v.SetDefault("timeout", constants.DefaultRunTimeout)
}

// GlobalFlags are the persistent flags of the root command.
type GlobalFlags struct {
	Verbose  bool
	Quiet    bool
	NoColor  bool
	Format   string
	LogLevel string
	Jobs     string
}

// UpdateFromFlags applies parsed global flags. Flags that were not given
// keep the configured values.
func (c *Config) UpdateFromFlags(f GlobalFlags) {
	c.Verbose = c.Verbose || f.Verbose
	c.Quiet = c.Quiet || f.Quiet
	c.NoColor = c.NoColor || f.NoColor
	if f.Format != "" {
		c.Format = f.Format
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.Jobs != "" {
		c.JobsFile = f.Jobs
	}
}

// loadEnvFiles loads .env then .env.local. Variables already set win.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
