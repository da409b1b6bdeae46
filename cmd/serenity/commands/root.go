package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/serenity/serenity/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// appState holds what PersistentPreRunE resolved for the running command.
type appState struct {
	viper  *viper.Viper
	cfg    *config.Config
	logger zerolog.Logger
}

var (
	configPath string
	logLevel   string
	state      appState
)

// NewRootCmd creates the serenity root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serenity",
		Short: "Emotion-aware wellbeing companion",
		Long: `Serenity classifies each message for crisis signals, emotion and
sentiment, keeps a short per-person conversation history and replies
through a local GGUF model or an OpenAI-compatible endpoint.

Examples:
  serenity chat --identity alice
  serenity classify "I am so stressed and overwhelmed at work"
  serenity schema response`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		NewChatCmd(),
		NewClassifyCmd(),
		NewSchemaCmd(),
		NewAlertsCmd(),
		NewMigrateCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setup(cmd *cobra.Command, _ []string) error {
	// .env is optional
	_ = godotenv.Load()

	v, err := config.NewViper(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	state = appState{viper: v, cfg: cfg, logger: logger}
	return nil
}

// NewLogger builds the process logger from config. Levels are applied
// globally so a config reload can change them in place.
func NewLogger(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	if out == nil {
		out = os.Stderr
	}
	switch cfg.Format {
	case "json":
	case "console", "":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return zerolog.New(out).With().Timestamp().Logger(), nil
}

// watchLogLevel follows logging.level in the config file for long-running commands.
func watchLogLevel(rt appState) {
	if rt.viper.ConfigFileUsed() == "" {
		return
	}
	config.Watch(rt.viper, func(cfg *config.Config, err error) {
		if err != nil {
			rt.logger.Warn().Err(err).Msg("ignoring invalid config reload")
			return
		}
		level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
		if err != nil {
			rt.logger.Warn().Err(err).Msg("ignoring invalid log level")
			return
		}
		zerolog.SetGlobalLevel(level)
		rt.logger.Info().Str("level", level.String()).Msg("log level reloaded")
	})
}
