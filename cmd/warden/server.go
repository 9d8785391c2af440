package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/modwarden/warden/automod/cachestore"
	"github.com/modwarden/warden/automod/classifier"
	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/detector"
	"github.com/modwarden/warden/automod/dispatch"
	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/flagstore"
	"github.com/modwarden/warden/automod/ledger"
	"github.com/modwarden/warden/automod/ruleset"
	"github.com/modwarden/warden/automod/setstore"
	"github.com/modwarden/warden/util/cliutil"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Server struct {
	logger *slog.Logger
	engine *engine.Engine
	db     *gorm.DB
	audit  *dispatch.SQLAuditSink
	echo   *echo.Echo
	httpd  *http.Server
	config Config
}

type Config struct {
	Logger            *slog.Logger
	Bind              string
	RulesFile         string
	SetsFileJSON      string
	DatabaseURL       string
	MaxDBConnections  int
	DBTracing         bool
	RedisURL          string
	HiveAPIToken      string
	ClassifierTimeout time.Duration
	ActionWebhookURL  string
	ActionToken       string
	ActionRateLimit   float64
	NoticeWebhookURL  string
	SlackWebhookURL   string
	SlackPerHour      int64
	QuotaBanDay       int
	QuotaKickDay      int
	AdminToken        string
	// registry for HTTP metrics; defaults to the global prometheus registry
	MetricsRegisterer prometheus.Registerer
}

// Persistent state shared by the daemon and the offline admin commands.
type stores struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	counters countstore.CountStore
	cache    cachestore.CacheStore
	flags    flagstore.FlagStore
}

// Picks storage backends: redis for everything when configured; otherwise the SQL database for the ledger, with in-process counters, flags and cache. The database (if any) is also used for the audit table.
func openStores(config Config) (*stores, error) {
	st := &stores{}
	if config.DatabaseURL != "" {
		db, err := cliutil.SetupDatabase(config.DatabaseURL, config.MaxDBConnections)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if config.DBTracing {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		st.db = db
	}

	var ls ledger.Store
	if config.RedisURL != "" {
		rls, err := ledger.NewRedisStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis ledger: %v", err)
		}
		ls = rls

		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		st.counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		st.cache = csh

		flg, err := flagstore.NewRedisFlagStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis flagstore: %v", err)
		}
		st.flags = flg
	} else {
		if st.db != nil {
			sls, err := ledger.NewSQLStore(st.db)
			if err != nil {
				return nil, fmt.Errorf("initializing SQL ledger: %w", err)
			}
			ls = sls
		} else {
			slog.Warn("no database or redis configured, warnings will not survive restart")
			ls = ledger.NewMemStore()
		}
		st.counters = countstore.NewMemCountStore()
		st.cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
		st.flags = flagstore.NewMemFlagStore()
	}
	st.ledger = ledger.NewLedger(ls)
	return st, nil
}

// Engine for the offline admin commands: ledger, counters and flags only. It can read and reset state, but not process events.
func (st *stores) adminEngine() *engine.Engine {
	return &engine.Engine{
		Logger:   slog.Default().With("system", "engine"),
		Ledger:   st.ledger,
		Counters: st.counters,
		Flags:    st.flags,
	}
}

func loadRules(path string) (*ruleset.RuleSet, error) {
	if path == "" {
		slog.Warn("no rules file configured, only heuristic detectors are active")
		return ruleset.Empty(), nil
	}
	return ruleset.LoadFile(path)
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	rs, err := loadRules(config.RulesFile)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded rules", "path", config.RulesFile, "count", rs.Len())

	sets := setstore.NewMemSetStore()
	if config.SetsFileJSON != "" {
		if err := sets.LoadFromFileJSON(config.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("initializing in-process setstore: %v", err)
		} else {
			logger.Info("loaded set config from JSON", "path", config.SetsFileJSON)
		}
	}

	st, err := openStores(config)
	if err != nil {
		return nil, err
	}

	var adapter *classifier.Adapter
	if config.HiveAPIToken != "" {
		logger.Info("configuring Hive AI text classifier")
		hc := classifier.NewHiveClient(config.HiveAPIToken)
		adapter = classifier.NewAdapter(classifier.NewCachedClassifier(hc, st.cache), config.ClassifierTimeout)
	}

	var disp dispatch.Dispatcher
	if config.ActionWebhookURL != "" {
		disp = dispatch.NewWebhookDispatcher(config.ActionWebhookURL, config.ActionToken, config.ActionRateLimit)
	} else {
		logger.Warn("no action webhook configured, sanctions will only be logged")
		disp = dispatch.NewLogDispatcher()
	}

	sinks := dispatch.MultiSink{dispatch.NewLogSink()}
	var sqlAudit *dispatch.SQLAuditSink
	if st.db != nil {
		sqlAudit, err = dispatch.NewSQLAuditSink(st.db)
		if err != nil {
			return nil, fmt.Errorf("initializing audit table: %w", err)
		}
		sinks = append(sinks, sqlAudit)
	}
	if config.SlackWebhookURL != "" {
		sinks = append(sinks, dispatch.NewSlackSink(config.SlackWebhookURL, config.SlackPerHour))
	}

	eng := engine.NewEngine(rs, detector.DefaultChain(rs, sets, adapter), st.ledger, disp)
	eng.Logger = logger.With("system", "engine")
	eng.Audit = sinks
	eng.Counters = st.counters
	eng.Flags = st.flags
	eng.Config = engine.EngineConfig{
		QuotaBanDay:  config.QuotaBanDay,
		QuotaKickDay: config.QuotaKickDay,
	}
	if config.NoticeWebhookURL != "" {
		eng.Notifier = dispatch.NewWebhookNotifier(config.NoticeWebhookURL, config.ActionToken)
	}

	srv := &Server{
		logger: logger,
		engine: eng,
		db:     st.db,
		audit:  sqlAudit,
		config: config,
	}
	srv.setupEcho()
	return srv, nil
}

func (srv *Server) setupEcho() {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv.echo = e
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           srv.config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "warden",
		Registerer: srv.config.MetricsRegisterer,
	}))
	e.Use(otelecho.Middleware("warden"))
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = srv.errorHandler

	if srv.config.AdminToken != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Skipper: func(c echo.Context) bool {
				p := c.Path()
				return p == "/" || p == "/_health"
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(srv.config.AdminToken)) == 1, nil
			},
		}))
	}

	e.GET("/", srv.HandleHome)
	e.GET("/_health", srv.HandleHealthCheck)
	e.POST("/events", srv.HandleEvent)
	e.GET("/warnings/:guild/:user", srv.HandleGetWarnings)
	e.DELETE("/warnings/:guild/:user", srv.HandleResetWarnings)
	e.GET("/top/:guild", srv.HandleTop)
	e.GET("/stats/:guild", srv.HandleStats)
	e.GET("/audit/:guild", srv.HandleAudit)
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Serves the HTTP API until the context is cancelled, then shuts down gracefully.
func (srv *Server) RunAPI(ctx context.Context) error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server shutting down unexpectedly: %w", err)
	case <-ctx.Done():
	}
	return srv.Shutdown()
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.httpd.Shutdown(ctx)
	if cerr := srv.engine.Ledger.Close(); cerr != nil {
		srv.logger.Error("failed to close ledger store", "err", cerr)
	}
	return err
}
