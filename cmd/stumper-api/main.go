package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stumperworks/stumper/backend/internal/achievements"
	"github.com/stumperworks/stumper/backend/internal/answers"
	"github.com/stumperworks/stumper/backend/internal/auth"
	"github.com/stumperworks/stumper/backend/internal/catalog"
	"github.com/stumperworks/stumper/backend/internal/config"
	"github.com/stumperworks/stumper/backend/internal/daily"
	"github.com/stumperworks/stumper/backend/internal/database"
	"github.com/stumperworks/stumper/backend/internal/guest"
	"github.com/stumperworks/stumper/backend/internal/logging"
	"github.com/stumperworks/stumper/backend/internal/progress"
	"github.com/stumperworks/stumper/backend/internal/server"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stumper-api",
		Short: "Stumper trivia progress and fairness backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

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
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Float64("tolerance-ratio", defaults.GetFloat64("answers.tolerance_ratio"), "Answer-matching edit-distance tolerance ratio")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("guest.session_ttl_minutes"), "Guest session TTL in minutes")
	cmd.PersistentFlags().Int("episode-lookback-days", defaults.GetInt("daily.episode_lookback_days"), "Daily challenge episode look-back window in days")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "answers.tolerance_ratio", "tolerance-ratio")
	bindFlag(cmd, "guest.session_ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "daily.episode_lookback_days", "episode-lookback-days")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	userTokens := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "stumper-auth",
		Audience:      "stumper-api",
	})
	guestTokens := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "stumper-auth",
		Audience:      "stumper-guest",
		TokenTTL:      time.Duration(appConfig.SessionTTLMinutes) * time.Minute,
	})

	catalogStore, err := catalog.NewStore(catalog.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	checker := answers.NewChecker(answers.CheckerConfig{ToleranceRatio: appConfig.ToleranceRatio})
	recorder, err := progress.NewRecorder(progress.RecorderConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: progress.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	guests, err := guest.NewManager(guest.ManagerConfig{
		Database:           db,
		Clock:              time.Now,
		SessionTTLMinutes:  appConfig.SessionTTLMinutes,
		MaxSingleQuestions: appConfig.MaxSingleQuestions,
		MaxBoardGames:      appConfig.MaxBoardGames,
		MaxDailyAttempts:   appConfig.MaxDailyAttempts,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	claimer, err := guest.NewClaimer(guest.ClaimerConfig{
		Database:   db,
		Recorder:   recorder,
		Clock:      time.Now,
		IDProvider: progress.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	evaluator, err := achievements.NewEvaluator(achievements.EvaluatorConfig{
		Database: db,
		Stats:    recorder,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	scheduler, err := daily.NewScheduler(daily.SchedulerConfig{
		Database:            db,
		Recorder:            recorder,
		Clock:               time.Now,
		EpisodeLookbackDays: appConfig.EpisodeLookbackDays,
		Logger:              logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:     catalogStore,
		Checker:     checker,
		Recorder:    recorder,
		Guests:      guests,
		Claimer:     claimer,
		Evaluator:   evaluator,
		Scheduler:   scheduler,
		UserTokens:  userTokens,
		GuestTokens: guestTokens,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
