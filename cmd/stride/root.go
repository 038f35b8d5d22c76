package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/PaceOps/stride/internal/auth"
	"github.com/PaceOps/stride/internal/fingerprint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the CLI. Every flag is also readable from the
// environment with a STRIDE_ prefix (STRIDE_EMAIL, STRIDE_PASSWORD, ...),
// which is how credentials are normally supplied.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stride",
		Short:         "Crawl club activity feeds from an authenticated session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("email", "", "account email (STRIDE_EMAIL)")
	root.PersistentFlags().String("password", "", "account password (STRIDE_PASSWORD)")
	root.PersistentFlags().String("base-url", "https://www.strava.com", "target site base URL")
	root.PersistentFlags().String("fingerprint", string(fingerprint.ProfileChrome), "TLS fingerprint profile (chrome, firefox, safari, go, random)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Int("metrics-port", 0, "expose prometheus /metrics on this port (0 = disabled)")

	viper.SetEnvPrefix("STRIDE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(root.PersistentFlags())

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogging(viper.GetString("log-level"))
	}

	root.AddCommand(newCrawlCmd())
	root.AddCommand(newNicknameCmd())

	return root
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// newSession builds the authenticated session from the resolved config.
func newSession() (*auth.Session, error) {
	creds := auth.Credentials{
		Email:    viper.GetString("email"),
		Password: viper.GetString("password"),
	}

	return auth.NewSession(creds, auth.Options{
		BaseURL:     viper.GetString("base-url"),
		Fingerprint: fingerprint.Profile(viper.GetString("fingerprint")),
		Logger:      slog.Default(),
	})
}
