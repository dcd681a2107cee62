package cmd

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dipak0000812/credtrack/internal/config"
)

const envPrefix = "CREDTRACK"

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the reportctl command tree with its own viper
// instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Generate credentialing reports from the report job API",
		Long: `reportctl starts report jobs, polls them until the CSV is ready and either
saves the file or prints it as a table.

Settings come from flags, CREDTRACK_* environment variables (also read from a
.env file in the working directory) and the credtrack YAML config file, in
that order of precedence:
  CREDTRACK_URL      Report API base URL
  CREDTRACK_TOKEN    Bearer token for the report API`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "credtrack YAML config file")
	flags.String("url", "", "report API base URL")
	flags.StringP("token", "t", "", "API token for authentication")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.String("cache-backend", "file", "report cache: memory, file or redis")
	flags.String("cache-path", "", "cache document for the file backend (default is $HOME/.reportctl-cache.json)")
	flags.Duration("cache-ttl", 24*time.Hour, "how long cached reports are served")
	flags.String("redis-addr", "localhost:6379", "redis address for the redis backend")
	flags.String("redis-password", "", "redis password")
	flags.Int("redis-db", 0, "redis database")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	_ = v.BindPFlags(flags)

	root.AddCommand(newGenerateCommand(v), newKindsCommand())
	return root
}

func initConfig(v *viper.Viper, cfgFile string) error {
	// A missing .env is fine.
	_ = godotenv.Load()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyConfig(v, cfg)
	return nil
}

// applyConfig seeds viper defaults from the YAML config so flags and the
// environment still take precedence.
func applyConfig(v *viper.Viper, cfg *config.Config) {
	v.SetDefault("url", cfg.Reports.BaseURL)
	v.SetDefault("token", cfg.Reports.Token)
	v.SetDefault("timeout", cfg.Reports.Timeout)
	v.SetDefault("cache-backend", cfg.Cache.Backend)
	v.SetDefault("cache-path", cfg.Cache.Path)
	v.SetDefault("cache-ttl", cfg.Cache.TTL)
	v.SetDefault("redis-addr", cfg.Cache.RedisAddr)
	v.SetDefault("redis-password", cfg.Cache.RedisPassword)
	v.SetDefault("redis-db", cfg.Cache.RedisDB)
	v.SetDefault("log-level", cfg.Logging.Level)
	v.SetDefault("poll-interval", cfg.Poll.InitialDelay)
	v.SetDefault("poll-max-interval", cfg.Poll.MaxDelay)
	v.SetDefault("poll-jitter", cfg.Poll.MaxJitter)
	v.SetDefault("max-retries", cfg.Poll.MaxRetries)
}
