// Command zerobase-server runs the zerobase control plane: the REST API, the
// realtime websocket endpoint and an optional gRPC health listener.
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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/access"
	"github.com/and161185/zerobase/internal/config"
	pkgcrypto "github.com/and161185/zerobase/internal/crypto"
	"github.com/and161185/zerobase/internal/limiter"
	"github.com/and161185/zerobase/internal/migrate"
	"github.com/and161185/zerobase/internal/realtime"
	"github.com/and161185/zerobase/internal/repository/postgres"
	grpcserver "github.com/and161185/zerobase/internal/server/grpc"
	"github.com/and161185/zerobase/internal/server/httpapi"
	"github.com/and161185/zerobase/internal/service"
	"github.com/and161185/zerobase/internal/storage"
	"github.com/and161185/zerobase/internal/tenant"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	var rf rootFlags
	root := &cobra.Command{
		Use:           "zerobase-server",
		Short:         "Multi-tenant backend-as-a-service control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rf.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&rf.envFile, "env-file", ".env", "dotenv file (ignored when missing)")

	root.AddCommand(newServeCmd(&rf), newMigrateCmd(&rf), newVersionCmd())
	return root
}

// loadConfig applies flags the user actually set on top of file and environment values.
func loadConfig(cmd *cobra.Command, rf *rootFlags) (config.Config, error) {
	cfg, err := config.Load(rf.configPath, rf.envFile)
	if err != nil {
		return config.Config{}, err
	}
	fs := cmd.Flags()
	if fs.Changed("addr") {
		cfg.HTTP.Addr, _ = fs.GetString("addr")
	}
	if fs.Changed("health-addr") {
		cfg.GRPC.HealthAddr, _ = fs.GetString("health-addr")
	}
	if fs.Changed("dsn") {
		cfg.Database.URL, _ = fs.GetString("dsn")
	}
	if fs.Changed("storage") {
		cfg.Storage.Path, _ = fs.GetString("storage")
	}
	if fs.Changed("dev") {
		cfg.Log.Development, _ = fs.GetBool("dev")
	}
	return cfg, nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newServeCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and serve the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, rf)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log.Development)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("health-addr", "", "gRPC health listen address (empty disables)")
	cmd.Flags().String("dsn", "", "control-plane PostgreSQL DSN")
	cmd.Flags().String("storage", "", "storage root directory")
	cmd.Flags().Bool("dev", false, "development logging")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
	)

	if err := migrate.Up(ctx, cfg.Database.URL); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()
	db := &postgres.DB{Pool: pool}

	loc, err := tenant.NewLocator(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("tenant locator: %w", err)
	}
	tenants := tenant.NewPools(loc, cfg.Tenant.MaxPools, cfg.Tenant.MaxConns, logger)
	defer tenants.Close()

	// Repositories
	projectRepo := postgres.NewProjectRepo(db)
	schemaRepo := postgres.NewSchemaRepo(tenants)
	documentRepo := postgres.NewDocumentRepo(tenants)
	userRepo := postgres.NewUserRepo(tenants)
	logRepo := postgres.NewLogRepo(tenants)

	lim := limiter.NewPG(pool, cfg.Auth.LoginWindow, cfg.Auth.LoginMaxFailures, cfg.Auth.LoginBlockFor)
	files := storage.New(cfg.Storage.Path, cfg.Storage.MaxFileMB, logger)
	if err := os.MkdirAll(cfg.Storage.Path, 0o750); err != nil {
		return fmt.Errorf("storage root: %w", err)
	}

	hub := realtime.NewHub(64, logger)
	defer hub.Shutdown()

	// Services
	projectSvc := service.NewProjectService(projectRepo, schemaRepo, files, cfg.Storage.DefaultQuotaMB, logger)
	authSvc := service.NewAuthService(userRepo, pkgcrypto.NewSessions([]byte(cfg.Auth.JWTSecret)), cfg.DefaultExpiry(),
		lim, service.IDTokenVerifier{ClientID: cfg.Auth.GoogleClientID}, logger)

	gate := access.New(projectRepo, access.Options{RequireKeyWithoutOrigin: cfg.Access.RequireKeyWithoutOrigin})
	if !cfg.Access.RequireKeyWithoutOrigin {
		logger.Warn("requests without an Origin header are admitted without an API key; keep the API behind network access control")
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Projects:  projectSvc,
		Schema:    service.NewSchemaService(schemaRepo, logger),
		Documents: service.NewDocumentService(documentRepo, hub),
		Auth:      authSvc,
		Storage:   service.NewStorageService(projectRepo, files, logger),
		Activity:  service.NewActivityService(logRepo, logger),
		Gate:      gate,
		Realtime:  hub,
		WS:        realtime.NewServer(hub, projectRepo, logger),
		Health:    projectRepo,
		Log:       logger,
	}, httpapi.Options{
		DashboardOrigins: cfg.CORS.DashboardOrigins,
		MaxUploadMB:      cfg.Storage.MaxFileMB,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var stopGRPC func()
	if cfg.GRPC.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPC.HealthAddr, err)
		}
		hc := grpcserver.NewHealth(projectRepo, 0, logger)
		go hc.Run(ctx)
		gs := grpcserver.New(hc, logger)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPC.HealthAddr))
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
		stopGRPC = gs.GracefulStop
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	hub.Shutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if stopGRPC != nil {
		done := make(chan struct{})
		go func() {
			stopGRPC()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	}
	logger.Info("shutdown complete")
	return nil
}

func newMigrateCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply control-plane migrations and print the schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, rf)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url (DATABASE_URL) is required")
			}
			if err := migrate.Up(cmd.Context(), cfg.Database.URL); err != nil {
				return err
			}
			v, err := migrate.Version(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "control-plane schema at version %d\n", v)
			return nil
		},
	}
	cmd.Flags().String("dsn", "", "control-plane PostgreSQL DSN")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zerobase-server %s (built %s)\n", version, buildDate)
		},
	}
}
