package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parlorgames/quizmatch/backend/internal/auth"
	"github.com/parlorgames/quizmatch/backend/internal/config"
	"github.com/parlorgames/quizmatch/backend/internal/database"
	"github.com/parlorgames/quizmatch/backend/internal/logging"
	"github.com/parlorgames/quizmatch/backend/internal/match"
	"github.com/parlorgames/quizmatch/backend/internal/notify"
	"github.com/parlorgames/quizmatch/backend/internal/presence"
	"github.com/parlorgames/quizmatch/backend/internal/quiz"
	"github.com/parlorgames/quizmatch/backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quizmatch-api",
		Short: "QuizMatch matchmaking backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	reapCmd := &cobra.Command{
		Use:   "reap",
		Short: "Delete stale waiting matches and exit",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReapOnce(cmd.Context())
		},
	}
	rootCmd.AddCommand(reapCmd)

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
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().Int("match-freshness-minutes", defaults.GetInt("match.freshness_minutes"), "Maximum age a waiting match stays claimable")
	cmd.PersistentFlags().Int("presence-window-minutes", defaults.GetInt("presence.window_minutes"), "Inactivity window after which a user counts as offline")
	cmd.PersistentFlags().Int("reaper-interval-minutes", defaults.GetInt("reaper.interval_minutes"), "Interval between stale match sweeps")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Bearer token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "match.freshness_minutes", "match-freshness-minutes")
	bindFlag(cmd, "presence.window_minutes", "presence-window-minutes")
	bindFlag(cmd, "reaper.interval_minutes", "reaper-interval-minutes")
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

type services struct {
	config     config.AppConfig
	logger     *zap.Logger
	closeDB    func() error
	matches    *match.Service
	store      match.Store
	tracker    *presence.Tracker
	quizzes    *quiz.Service
	dispatcher *notify.Dispatcher
	tokens     *auth.TokenIssuer
}

func buildServices() (*services, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	tracker, err := presence.NewTracker(presence.TrackerConfig{
		Database: db,
		Window:   appConfig.PresenceWindow,
	})
	if err != nil {
		return nil, err
	}

	dispatcher := notify.NewDispatcher()

	quizService, err := quiz.NewService(quiz.ServiceConfig{
		Database:   db,
		IDProvider: match.NewUUIDProvider(),
		Publisher:  dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := match.NewStore(match.StoreConfig{
		Database:   db,
		IDProvider: match.NewUUIDProvider(),
	})
	if err != nil {
		return nil, err
	}

	matchService, err := match.NewService(match.ServiceConfig{
		Store:     store,
		Presence:  tracker,
		Quizzes:   quizService,
		Staleness: match.Staleness{Window: appConfig.MatchFreshness},
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})

	return &services{
		config:     appConfig,
		logger:     logger,
		closeDB:    sqlDB.Close,
		matches:    matchService,
		store:      store,
		tracker:    tracker,
		quizzes:    quizService,
		dispatcher: dispatcher,
		tokens:     tokenManager,
	}, nil
}

func runServer(ctx context.Context) error {
	deps, err := buildServices()
	if err != nil {
		return err
	}
	defer deps.logger.Sync() //nolint:errcheck
	defer deps.closeDB()     //nolint:errcheck

	reaper, err := match.NewReaper(match.ReaperConfig{
		Store:     deps.store,
		Presence:  deps.tracker,
		Staleness: match.Staleness{Window: deps.config.MatchFreshness},
		Interval:  deps.config.ReaperInterval,
		Logger:    deps.logger,
	})
	if err != nil {
		return err
	}
	if err := reaper.Start(); err != nil {
		return err
	}
	defer reaper.Stop() //nolint:errcheck

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: deps.tokens,
		MatchService: deps.matches,
		QuizService:  deps.quizzes,
		Presence:     deps.tracker,
		Logger:       deps.logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go consumeQuizEvents(signalCtx, deps.dispatcher, deps.logger)

	httpServer := &http.Server{
		Addr:    deps.config.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.logger.Info("server starting", zap.String("address", deps.config.HTTPAddress))
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

func runReapOnce(ctx context.Context) error {
	deps, err := buildServices()
	if err != nil {
		return err
	}
	defer deps.logger.Sync() //nolint:errcheck
	defer deps.closeDB()     //nolint:errcheck

	reaper, err := match.NewReaper(match.ReaperConfig{
		Store:     deps.store,
		Presence:  deps.tracker,
		Staleness: match.Staleness{Window: deps.config.MatchFreshness},
		Logger:    deps.logger,
	})
	if err != nil {
		return err
	}

	deleted, err := reaper.RunOnce(ctx)
	if err != nil {
		return err
	}
	deps.logger.Info("sweep finished", zap.Int64("deleted", deleted))
	return nil
}

// consumeQuizEvents is the in-process stand-in for the notification
// dispatcher; a real deployment would hand these to an email or push pipeline.
func consumeQuizEvents(ctx context.Context, dispatcher *notify.Dispatcher, logger *zap.Logger) {
	events, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logger.Info("quiz event",
				zap.String("event", event.EventType),
				zap.String("quiz_id", event.QuizID),
				zap.String("title", event.Title))
		}
	}
}
