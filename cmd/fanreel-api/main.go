package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/auth"
	"github.com/MarcoPoloResearchLab/fanreel/internal/config"
	"github.com/MarcoPoloResearchLab/fanreel/internal/database"
	"github.com/MarcoPoloResearchLab/fanreel/internal/logging"
	"github.com/MarcoPoloResearchLab/fanreel/internal/server"
	"github.com/MarcoPoloResearchLab/fanreel/internal/users"
	"github.com/MarcoPoloResearchLab/fanreel/internal/videos"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fanreel-api",
		Short: "FanReel catalog API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "token <identity>",
		Short: "Issue a session token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return issueToken(cmd, args[0])
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Session token TTL")
	cmd.PersistentFlags().String("creator-identity", "", "Identity granted the creator (admin) role")
	cmd.PersistentFlags().String("public-base-url", "", "Public base URL used in content addresses")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "creator.identity", "creator-identity")
	bindFlag(cmd, "public.base_url", "public-base-url")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

func newTokenIssuer(appConfig config.ServerConfig) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
}

func issueToken(cmd *cobra.Command, identity string) error {
	appConfig, err := config.LoadServer(viper.GetViper())
	if err != nil {
		return err
	}
	issuer, err := newTokenIssuer(appConfig)
	if err != nil {
		return err
	}
	token, expiresIn, err := issuer.IssueSessionToken(cmd.Context(), identity)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires in %s\n", time.Duration(expiresIn)*time.Second)
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.LoadServer(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	gin.SetMode(gin.ReleaseMode)

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := newTokenIssuer(appConfig)
	if err != nil {
		return err
	}

	videoService, err := videos.NewService(videos.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: videos.NewBlobIDProvider(),
		Logger:     logger.Named("videos"),
	})
	if err != nil {
		return err
	}

	if appConfig.CreatorIdentity == "" {
		logger.Warn("creator.identity is not set; uploads are disabled")
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database:        db,
		CreatorIdentity: appConfig.CreatorIdentity,
		Clock:           time.Now,
		Logger:          logger.Named("users"),
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:    tokenManager,
		Videos:          videoService,
		Users:           userService,
		Events:          server.NewEventHub(),
		Metrics:         server.NewMetrics(),
		PublicBaseURL:   appConfig.PublicBaseURL,
		MaxContentBytes: appConfig.MaxContentBytes,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	streamCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return streamCtx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		cancelStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
