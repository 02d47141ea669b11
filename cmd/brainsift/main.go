package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/scriptbloxx/brainsift-cli/internal/api"
	appI18n "github.com/scriptbloxx/brainsift-cli/internal/i18n"
	"github.com/scriptbloxx/brainsift-cli/internal/session"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		if errors.Is(err, api.ErrSessionExpired) {
			fmt.Fprintln(os.Stderr, appI18n.T("SessionExpired"))
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "brainsift",
		Short: "Take and generate AI-built exams from the command line",
	}

	root.AddCommand(
		loginCmd(), signupCmd(), logoutCmd(), whoamiCmd(), settingsCmd(),
		forgotPasswordCmd(), resetPasswordCmd(),
		generateCmd(), takeCmd(), historyCmd(),
	)

	return root
}

// addCommonFlags registers the flags every subcommand shares.
func addCommonFlags(f *pflag.FlagSet) {
	f.String("api-url", "http://localhost:4000", "BrainSift API base URL")
	f.String("state", "", "Local state database path (default: user config dir)")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("BRAINSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("brainsift")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/brainsift")
	v.AddConfigPath("/etc/brainsift")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	}

	return v
}

// env holds the shared dependencies a subcommand needs.
type env struct {
	v      *viper.Viper
	state  *session.Store
	client *api.Client
}

func (e *env) close() {
	if e.state != nil {
		_ = e.state.Close()
	}
}

// setup prepares logging, i18n, the local state store, and the API client.
func setup(cmd *cobra.Command) (*env, error) {
	v := viperForCmd(cmd)
	setupLogging(v)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	statePath := v.GetString("state")
	if statePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		statePath = filepath.Join(dir, "brainsift", "state.db")
	}
	if err := os.MkdirAll(filepath.Dir(statePath), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	state, err := session.Open(statePath)
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}

	return &env{
		v:      v,
		state:  state,
		client: api.New(v.GetString("api-url"), state),
	}, nil
}
