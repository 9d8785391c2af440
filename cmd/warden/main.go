package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modwarden/warden/automod/consumer"
	"github.com/modwarden/warden/automod/detector"
	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/setstore"
	"github.com/modwarden/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "chat moderation daemon: warning points, escalation, sanctions",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "rules-file",
			Usage:   "path to rules config (JSON or YAML)",
			EnvVars: []string{"WARDEN_RULES_FILE"},
		},
		&cli.StringFlag{
			Name:    "sets-json-path",
			Usage:   "file path of JSON file containing static sets (attachment allow-list, extra spam keywords)",
			EnvVars: []string{"WARDEN_SETS_JSON_PATH"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database for warning ledger and audit table (sqlite:// or postgres://)",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-metadb-connections",
			EnvVars: []string{"MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL; when set, ledger, counters, flags and cache live in redis",
			EnvVars: []string{"WARDEN_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"WARDEN_LOG_FMT"},
		},
	}

	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
		})
		return err
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkCmd,
		replayCmd,
		warningsCmd,
		resetCmd,
		topCmd,
		statsCmd,
		decayCmd,
	}

	return app.Run(args)
}

func storeConfig(cctx *cli.Context) Config {
	return Config{
		DatabaseURL:      cctx.String("database-url"),
		MaxDBConnections: cctx.Int("max-metadb-connections"),
		RedisURL:         cctx.String("redis-url"),
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "events-file",
			Usage:   "newline-delimited JSON event stream to consume ('-' for stdin); HTTP ingest is always available",
			EnvVars: []string{"WARDEN_EVENTS_FILE"},
		},
		&cli.IntFlag{
			Name:    "parallelism",
			Usage:   "number of events to process concurrently from the event stream",
			Value:   8,
			EnvVars: []string{"WARDEN_PARALLELISM"},
		},
		&cli.DurationFlag{
			Name:    "decay-interval",
			Usage:   "how often expired warnings are pruned from the ledger",
			Value:   time.Hour,
			EnvVars: []string{"WARDEN_DECAY_INTERVAL"},
		},
		&cli.StringFlag{
			Name:    "hiveai-api-token",
			Usage:   "API token for Hive AI text and image classification",
			EnvVars: []string{"HIVEAI_API_TOKEN"},
		},
		&cli.DurationFlag{
			Name:    "classifier-timeout",
			Usage:   "deadline for a classifier verdict (capped at 5s)",
			Value:   3 * time.Second,
			EnvVars: []string{"WARDEN_CLASSIFIER_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "action-webhook-url",
			Usage:   "endpoint of the chat gateway which executes timeouts, kicks and bans",
			EnvVars: []string{"WARDEN_ACTION_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "notice-webhook-url",
			Usage:   "endpoint of the chat gateway which posts user-visible notices",
			EnvVars: []string{"WARDEN_NOTICE_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "gateway-token",
			Usage:   "bearer token sent to the action and notice webhooks",
			EnvVars: []string{"WARDEN_GATEWAY_TOKEN"},
		},
		&cli.Float64Flag{
			Name:    "action-rate-limit",
			Usage:   "max moderation actions per second sent to the gateway",
			Value:   5,
			EnvVars: []string{"WARDEN_ACTION_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook for audit reports",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.Int64Flag{
			Name:    "slack-per-hour",
			Usage:   "max slack messages per hour",
			Value:   60,
			EnvVars: []string{"WARDEN_SLACK_PER_HOUR"},
		},
		&cli.IntFlag{
			Name:    "quota-ban-day",
			Usage:   "circuit breaker: max bans per guild per day (0 for unlimited)",
			Value:   50,
			EnvVars: []string{"WARDEN_QUOTA_BAN_DAY"},
		},
		&cli.IntFlag{
			Name:    "quota-kick-day",
			Usage:   "circuit breaker: max kicks per guild per day (0 for unlimited)",
			Value:   100,
			EnvVars: []string{"WARDEN_QUOTA_KICK_DAY"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token required for the HTTP API (health and keep-alive excepted)",
			EnvVars: []string{"WARDEN_ADMIN_TOKEN"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit trace spans for database queries",
			EnvVars: []string{"WARDEN_DB_TRACING"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger := slog.Default()

		shutdownOTEL, err := configOTEL("warden")
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		defer shutdownOTEL()

		config := storeConfig(cctx)
		config.Logger = logger
		config.Bind = cctx.String("bind")
		config.RulesFile = cctx.String("rules-file")
		config.SetsFileJSON = cctx.String("sets-json-path")
		config.DBTracing = cctx.Bool("db-tracing")
		config.HiveAPIToken = cctx.String("hiveai-api-token")
		config.ClassifierTimeout = cctx.Duration("classifier-timeout")
		config.ActionWebhookURL = cctx.String("action-webhook-url")
		config.NoticeWebhookURL = cctx.String("notice-webhook-url")
		config.ActionToken = cctx.String("gateway-token")
		config.ActionRateLimit = cctx.Float64("action-rate-limit")
		config.SlackWebhookURL = cctx.String("slack-webhook-url")
		config.SlackPerHour = cctx.Int64("slack-per-hour")
		config.QuotaBanDay = cctx.Int("quota-ban-day")
		config.QuotaKickDay = cctx.Int("quota-kick-day")
		config.AdminToken = cctx.String("admin-token")

		srv, err := NewServer(config)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.RunAPI(gctx)
		})
		g.Go(func() error {
			if err := srv.engine.RunDecay(gctx, cctx.Duration("decay-interval")); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
		if path := cctx.String("events-file"); path != "" {
			g.Go(func() error {
				var r io.Reader = os.Stdin
				if path != "-" {
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				sc := consumer.NewStreamConsumer(srv.engine, cctx.Int("parallelism"))
				if err := sc.Run(gctx, r); err != nil && gctx.Err() == nil {
					return fmt.Errorf("event stream consumer: %w", err)
				}
				logger.Info("event stream finished", "lines", sc.LastLine())
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "validate the rules file, and optionally show how a message would be handled",
	ArgsUsage: "[<text>]",
	Action: func(cctx *cli.Context) error {
		rs, err := loadRules(cctx.String("rules-file"))
		if err != nil {
			return err
		}
		fmt.Printf("rules: %d\n", rs.Len())
		for _, step := range rs.Ladder().Steps() {
			fmt.Printf("  %d points -> %s\n", step.Threshold, step.Action.String())
		}
		if cctx.Args().Len() == 0 {
			return nil
		}

		sets := setstore.NewMemSetStore()
		if p := cctx.String("sets-json-path"); p != "" {
			if err := sets.LoadFromFileJSON(p); err != nil {
				return err
			}
		}
		chain := detector.DefaultChain(rs, sets, nil)
		evt := &event.Event{
			Scope: event.Scope{GuildID: "check", UserID: "check"},
			Text:  cctx.Args().First(),
		}
		v := chain.Detect(cctx.Context, evt)
		if v == nil {
			fmt.Println("no violation")
			return nil
		}
		d := rs.Ladder().Decide(escalation.TriggerFor(v), v.Scope, v.SeverityPoints)
		return printJSON(map[string]any{
			"violation":         v,
			"first_time_action": d.Action.String(),
		})
	},
}

var replayCmd = &cli.Command{
	Name:      "replay",
	Usage:     "run a recorded event fixture against the rules file, using in-memory state",
	ArgsUsage: "<fixture.json>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected <fixture.json> argument")
		}
		fx, err := engine.LoadFixture(cctx.Args().First())
		if err != nil {
			return err
		}
		// no database or redis: replay never touches persistent state
		srv, err := NewServer(Config{
			Logger:       slog.Default(),
			RulesFile:    cctx.String("rules-file"),
			SetsFileJSON: cctx.String("sets-json-path"),
		})
		if err != nil {
			return err
		}
		outcomes, err := srv.engine.Replay(cctx.Context, fx)
		if err != nil {
			return err
		}
		for i, o := range outcomes {
			fmt.Printf("%s\t%s\t%d\t%s\n", fx.Events[i].MessageID, fx.Events[i].Scope, o.TotalPoints, outcomeAction(o))
		}
		return fx.Check(outcomes)
	},
}

func outcomeAction(o *engine.Outcome) string {
	if o.Decision == nil {
		return "-"
	}
	return o.Decision.Action.String()
}

func scopeArgs(cctx *cli.Context) (event.Scope, error) {
	if cctx.Args().Len() != 2 {
		return event.Scope{}, fmt.Errorf("expected <guild> and <user> arguments")
	}
	return event.Scope{GuildID: cctx.Args().Get(0), UserID: cctx.Args().Get(1)}, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

var warningsCmd = &cli.Command{
	Name:      "warnings",
	Usage:     "show current warning points and history for a user",
	ArgsUsage: "<guild> <user>",
	Action: func(cctx *cli.Context) error {
		scope, err := scopeArgs(cctx)
		if err != nil {
			return err
		}
		st, err := openStores(storeConfig(cctx))
		if err != nil {
			return err
		}
		defer st.ledger.Close()
		rep, err := st.adminEngine().ScopeReport(cctx.Context, scope)
		if err != nil {
			return err
		}
		return printJSON(rep)
	},
}

var resetCmd = &cli.Command{
	Name:      "reset",
	Usage:     "clear all warnings for a user",
	ArgsUsage: "<guild> <user>",
	Action: func(cctx *cli.Context) error {
		scope, err := scopeArgs(cctx)
		if err != nil {
			return err
		}
		st, err := openStores(storeConfig(cctx))
		if err != nil {
			return err
		}
		defer st.ledger.Close()
		if err := st.ledger.Reset(cctx.Context, scope); err != nil {
			return err
		}
		fmt.Printf("warnings reset for %s\n", scope)
		return nil
	},
}

var topCmd = &cli.Command{
	Name:      "top",
	Usage:     "list users in a guild with the most warning points",
	ArgsUsage: "<guild>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Value: 10,
		},
	},
	Action: func(cctx *cli.Context) error {
		guild := cctx.Args().First()
		if guild == "" {
			return fmt.Errorf("expected <guild> argument")
		}
		st, err := openStores(storeConfig(cctx))
		if err != nil {
			return err
		}
		defer st.ledger.Close()
		top, err := st.ledger.Top(cctx.Context, guild, cctx.Int("limit"))
		if err != nil {
			return err
		}
		for i, e := range top {
			fmt.Printf("%d. %s: %d points\n", i+1, e.Scope.UserID, e.TotalPoints)
		}
		return nil
	},
}

var statsCmd = &cli.Command{
	Name:      "stats",
	Usage:     "show violation and sanction counters for a guild (requires redis for counts from the daemon)",
	ArgsUsage: "<guild>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "period",
			Usage: "counter period: total, day or hour",
			Value: "day",
		},
	},
	Action: func(cctx *cli.Context) error {
		guild := cctx.Args().First()
		if guild == "" {
			return fmt.Errorf("expected <guild> argument")
		}
		st, err := openStores(storeConfig(cctx))
		if err != nil {
			return err
		}
		defer st.ledger.Close()
		stats, err := st.adminEngine().GuildStats(cctx.Context, guild, cctx.String("period"))
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var decayCmd = &cli.Command{
	Name:  "decay",
	Usage: "run a single pass pruning expired warnings",
	Action: func(cctx *cli.Context) error {
		st, err := openStores(storeConfig(cctx))
		if err != nil {
			return err
		}
		defer st.ledger.Close()
		stats, err := st.ledger.Decay(cctx.Context, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("scopes: %d, violations pruned: %d, entries removed: %d\n", stats.Scopes, stats.Pruned, stats.Removed)
		return nil
	},
}
