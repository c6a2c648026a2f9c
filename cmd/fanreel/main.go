package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/fanreel/internal/app"
	"github.com/MarcoPoloResearchLab/fanreel/internal/config"
	"github.com/MarcoPoloResearchLab/fanreel/internal/logging"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

type clientSession struct {
	app    *app.App
	client *remote.Client
	logger *zap.Logger
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "fanreel",
		Short:        "Browse, follow and upload FanReel videos",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newVideosCommand(),
		newVideoCommand(),
		newProfileCommand(),
		newSetNameCommand(),
		newFollowCommand(true),
		newFollowCommand(false),
		newUploadCommand(),
		newWatchCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-url", defaults.GetString("api.base_url"), "Base URL of the FanReel API")
	cmd.PersistentFlags().String("token", "", "Session token (overrides env)")
	cmd.PersistentFlags().String("binding-backend", defaults.GetString("binding.backend"), "Creator binding store (sqlite, redis, memory)")
	cmd.PersistentFlags().String("binding-path", defaults.GetString("binding.path"), "SQLite path for the creator binding")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the creator binding")
	cmd.PersistentFlags().String("probe", defaults.GetString("media.probe"), "Duration probe (mp4, ffprobe)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "api.base_url", "api-url")
	bindFlag(cmd, "api.token", "token")
	bindFlag(cmd, "binding.backend", "binding-backend")
	bindFlag(cmd, "binding.path", "binding-path")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "media.probe", "probe")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// withSession opens a viewer session for the duration of run.
func withSession(cmd *cobra.Command, run func(session clientSession) error) error {
	clientConfig, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLoggerWithFormat(clientConfig.LogLevel, logging.FormatConsole)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	session, client, err := app.Open(cmd.Context(), clientConfig, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("session close failed", zap.Error(closeErr))
		}
	}()
	return run(clientSession{app: session, client: client, logger: logger})
}
