package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/config"
	"github.com/tubekit/tubekit-server/internal/db"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/http/api/admin"
	"github.com/tubekit/tubekit-server/internal/http/api/front"
	"github.com/tubekit/tubekit-server/internal/http/middleware"
	"github.com/tubekit/tubekit-server/internal/logging"
	"github.com/tubekit/tubekit-server/internal/ratelimit"
	internalsettings "github.com/tubekit/tubekit-server/internal/settings"
	"github.com/tubekit/tubekit-server/internal/subject"
	"github.com/tubekit/tubekit-server/internal/tools"
	"github.com/tubekit/tubekit-server/internal/usage"
	"gorm.io/gorm"
)

const (
	catalogTTL      = time.Minute
	shutdownTimeout = 10 * time.Second
)

// openDatabase resolves the DSN for cfg, connects and migrates.
func openDatabase(cfg config.AppConfig) (*gorm.DB, string, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return nil, "", err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, "", err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, "", errMigrate
	}
	return conn, dsn, nil
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	_, dsn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if target, errDescribe := db.Describe(dsn); errDescribe == nil {
		log.Infof("migrated %s", target)
	}
	return nil
}

// ResetUsage clears one usage counter in the configured store.
func ResetUsage(ctx context.Context, cfg config.AppConfig, subjectKey, toolID string) error {
	subjectKey = strings.TrimSpace(subjectKey)
	toolID = strings.TrimSpace(toolID)
	if subjectKey == "" || toolID == "" {
		return fmt.Errorf("reset usage: subject and tool are required")
	}
	conn, _, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServerConfig(config.ResolveConfigPath(cfg.ConfigPath))
	if err != nil {
		return err
	}
	store, closer, err := buildUsageStore(ctx, conn, serverCfg.UsageStore)
	if err != nil {
		return err
	}
	defer closeQuietly(closer)
	if errReset := store.Reset(ctx, subjectKey, toolID); errReset != nil {
		return fmt.Errorf("reset usage: %w", errReset)
	}
	log.WithFields(log.Fields{"subject": subjectKey, "tool": toolID}).Info("usage counter reset")
	return nil
}

// counterStore is what the server needs from a usage backend.
type counterStore interface {
	usage.CounterStore
	usage.Lister
}

// buildUsageStore selects the counter backend named by cfg.Backend.
func buildUsageStore(ctx context.Context, conn *gorm.DB, cfg config.UsageStoreConfig) (counterStore, io.Closer, error) {
	switch cfg.Backend {
	case config.UsageBackendMemory:
		log.Warn("usage counters are kept in memory and reset on restart")
		return usage.NewMemoryStore(), io.NopCloser(nil), nil
	case config.UsageBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if errPing := client.Ping(pingCtx).Err(); errPing != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("usage store: redis ping: %w", errPing)
		}
		return usage.NewRedisStore(client, cfg.RedisPrefix), client, nil
	default:
		return usage.NewGormStore(conn), io.NopCloser(nil), nil
	}
}

// EngineDeps are the collaborators NewEngine routes to.
type EngineDeps struct {
	Front front.Deps
	Admin admin.Deps
}

// NewEngine builds the gin engine with the shared middleware chain and all routes.
func NewEngine(deps EngineDeps) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery())
	front.RegisterFrontRoutes(engine, deps.Front)
	admin.RegisterAdminRoutes(engine, deps.Admin)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}

// RunServer boots the HTTP API with database-backed components and blocks until ctx is done.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(serverCfg.Logging)
	if err != nil {
		return err
	}
	defer closeQuietly(logCloser)

	jwtConfig, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(jwtConfig.Secret) == "" {
		return fmt.Errorf("jwt secret is required (set jwt.secret or %s)", config.EnvJWTSecret)
	}
	if strings.TrimSpace(serverCfg.Webhook.Secret) == "" {
		log.Warn("webhook secret is empty, payment webhooks will be rejected")
	}

	conn, dsn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if target, errDescribe := db.Describe(dsn); errDescribe == nil {
		log.Infof("database: %s", target)
	}
	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	if !initialized {
		log.Warn("no admin user exists yet, run the create-admin command to add one")
	}

	if errRefresh := internalsettings.Refresh(ctx, conn); errRefresh != nil {
		return errRefresh
	}
	internalsettings.NewPoller(conn, internalsettings.DefaultRefreshInterval).Start(ctx)

	store, storeCloser, err := buildUsageStore(ctx, conn, serverCfg.UsageStore)
	if err != nil {
		return err
	}
	defer closeQuietly(storeCloser)

	ledger := usage.NewDebtLedger(conn)
	reconcileEvery := time.Duration(internalsettings.Int(internalsettings.ReconcileIntervalSecondsKey,
		internalsettings.DefaultReconcileIntervalSeconds)) * time.Second
	reconciler := usage.NewReconciler(ledger, store, reconcileEvery)
	reconciler.Start(ctx)

	catalog := entitlement.NewDBCatalog(conn, catalogTTL)
	evaluator := entitlement.NewEvaluator(store, catalog, entitlement.WithDebtRecorder(ledger))

	gin.SetMode(gin.ReleaseMode)
	engine := NewEngine(EngineDeps{
		Front: front.Deps{
			DB:            conn,
			JWT:           jwtConfig,
			Resolver:      subject.NewResolver(conn, jwtConfig, serverCfg.Visitor),
			Evaluator:     evaluator,
			Tools:         tools.DefaultRegistry(),
			Limiter:       ratelimit.NewManager(nil, nil, nil),
			WebhookSecret: serverCfg.Webhook.Secret,
		},
		Admin: admin.Deps{
			DB:         conn,
			JWT:        jwtConfig,
			Evaluator:  evaluator,
			Catalog:    catalog,
			Usage:      store,
			Debts:      ledger,
			Reconciler: reconciler,
		},
	})

	port := serverCfg.Port
	if port <= 0 {
		if defaultPort <= 0 {
			defaultPort = 8318
		}
		port = defaultPort
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", serverCfg.Host, port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting server on %s (config=%s, usage-store=%s)", srv.Addr, configPath, serverCfg.UsageStore.Backend)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	log.Info("server stopped")
	return nil
}

func closeQuietly(c io.Closer) {
	if c == nil {
		return
	}
	if errClose := c.Close(); errClose != nil {
		log.WithError(errClose).Warn("close failed")
	}
}
