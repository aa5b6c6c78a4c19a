package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "assessment",
		Short:         "Timed technical assessment API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetString("port")
			}
			if cmd.Flags().Changed("store") {
				cfg.Store, _ = cmd.Flags().GetString("store")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return run(cmd.Context(), cfg)
		},
	}
	serve.Flags().String("port", "", "listen port (overrides config)")
	serve.Flags().String("store", "", "session store: memory | sqlite")

	root.AddCommand(serve)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

func run(ctx context.Context, cfg Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// 1) Questions
	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	// 2) Store
	store, cleanup, err := OpenStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Error("store cleanup failed", "error", err)
		}
	}()

	// 3) Service + router
	svc := NewService(store, catalog,
		WithDuration(cfg.AssessmentDuration),
		WithLogger(logger),
	)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(svc, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"port", cfg.Port,
			"store", cfg.Store,
			"questions", catalog.Len(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped cleanly")
	return nil
}

// NewRouter wires the API routes onto a gin engine.
func NewRouter(svc *Service, cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}

	// --- CORS: configured origins + any localhost:port ---
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if slices.Contains(cfg.AllowedOrigins, origin) {
				return true
			}
			// allow any http://localhost:PORT during development
			return strings.HasPrefix(origin, "http://localhost:")
		},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	{
		api.GET("/questions", ListQuestions(svc))

		api.POST("/session/start", StartSession(svc))
		api.GET("/session/:id", GetSession(svc))
		api.POST("/session/answer", SubmitAnswer(svc))
		api.POST("/session/flag", FlagQuestion(svc))
		api.POST("/session/tab-switch", LogTabSwitch(svc))
		api.POST("/session/submit", SubmitSession(svc))

		api.GET("/results/:sessionId", GetResults(svc))
	}
	return r
}
