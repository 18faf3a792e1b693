package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bartek5186/stockhub/internal/api"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/catalog"
	conf "github.com/bartek5186/stockhub/internal/config"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/events"
	"github.com/bartek5186/stockhub/internal/integrations"
	"github.com/bartek5186/stockhub/internal/ledger"
	logs "github.com/bartek5186/stockhub/internal/logs"
	"github.com/bartek5186/stockhub/internal/marketing"
	syncer "github.com/bartek5186/stockhub/internal/syncer"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// version can be set with -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

const appName = "stockhub"

// app holds everything both front ends (CLI and tray) drive.
type app struct {
	dir     string
	cfgPath string
	logPath string
	cfg     *conf.Config
	log     zerolog.Logger

	dbh       *db.Handle
	hub       *events.Hub
	pub       events.Publisher
	signer    *auth.Signer
	ledger    *ledger.Service
	catalog   *catalog.Service
	marketing *marketing.Service
	syncer    *syncer.Syncer
	http      *http.Server
}

func newApp(withConsole bool) (*app, error) {
	a := &app{dir: mustAppDataDir(appName)}
	a.cfgPath = filepath.Join(a.dir, "config.json")
	a.logPath = filepath.Join(a.dir, "app.log")

	cfg, firstRun, err := conf.LoadOrCreate(a.cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(filepath.Join(a.dir, ".env"))
	a.cfg = cfg

	a.log = logs.New(a.logPath, withConsole, cfg.LogLevel)
	if firstRun {
		a.log.Info().Str("path", a.cfgPath).Msg("default config written")
	}

	a.dbh, err = db.Open(db.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		Dir:          a.dir,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Verbose:      cfg.LogLevel == "debug",
		Log:          &a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := a.dbh.Migrate(); err != nil {
		_ = a.dbh.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	a.log.Info().Str("driver", a.dbh.Driver).Str("db", a.dbh.Path).Msg("database ready")

	a.hub = events.NewHub()
	a.pub, err = buildPublisher(cfg.Events, a.hub, a.log)
	if err != nil {
		_ = a.dbh.Close()
		return nil, err
	}

	a.signer = auth.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	a.ledger = ledger.New(a.dbh.DB, a.pub, a.log.With().Str("component", "ledger").Logger())
	a.catalog = catalog.New(a.dbh.DB, a.log.With().Str("component", "catalog").Logger())
	a.marketing = marketing.New(a.dbh.DB, a.log.With().Str("component", "marketing").Logger())
	a.syncer = syncer.New(a.log, cfg, integrations.Deps{
		DB:      a.dbh.DB,
		Ledger:  a.ledger,
		Catalog: a.catalog,
	})
	return a, nil
}

// buildPublisher always fans out to the in-process hub and the log; Kafka
// or Redis is added when configured.
func buildPublisher(c conf.EventsConfig, hub *events.Hub, log zerolog.Logger) (events.Publisher, error) {
	pubs := events.Multi{hub, events.Log{L: log}}
	switch c.Driver {
	case "":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return nil, errors.New("events: kafka driver needs kafka_brokers")
		}
		pubs = append(pubs, events.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic))
		log.Info().Strs("brokers", c.KafkaBrokers).Str("topic", c.KafkaTopic).Msg("kafka events enabled")
	case "redis":
		rp, err := events.NewRedisPublisher(c.RedisAddr, c.RedisPassword, c.RedisDB, c.RedisChannel)
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		pubs = append(pubs, rp)
		log.Info().Str("addr", c.RedisAddr).Str("channel", c.RedisChannel).Msg("redis events enabled")
	default:
		return nil, fmt.Errorf("events: unknown driver %q", c.Driver)
	}
	return pubs, nil
}

func (a *app) startHTTP() {
	if a.cfg.HTTP.Addr == "" {
		a.log.Warn().Msg("http.addr empty, API disabled")
		return
	}
	gin.SetMode(gin.ReleaseMode)
	h := api.Router(api.Deps{
		Log:          a.log.With().Str("component", "api").Logger(),
		Ledger:       a.ledger,
		Catalog:      a.catalog,
		Marketing:    a.marketing,
		Hub:          a.hub,
		Signer:       a.signer,
		AllowOrigins: a.cfg.HTTP.AllowOrigins,
		Status:       func() any { return a.syncer.Status() },
	})
	a.http = &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.log.Info().Str("addr", a.cfg.HTTP.Addr).Msg("http listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("http server failed")
		}
	}()
}

// reload rereads config.json and restarts the integrations with it.
func (a *app) reload(ctx context.Context) error {
	cfg, _, err := conf.LoadOrCreate(a.cfgPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(filepath.Join(a.dir, ".env"))
	a.cfg = cfg
	a.log = a.log.Level(logs.ParseLevel(cfg.LogLevel))
	a.syncer.UpdateConfig(ctx, cfg)
	a.log.Info().Msg("config reloaded")
	return nil
}

// issueToken mints an API token, for operators and scripts.
func (a *app) issueToken(subject string, role auth.Role, ttl time.Duration) (string, error) {
	return a.signer.Issue(subject, role, ttl)
}

func (a *app) close() {
	a.syncer.Stop()
	if a.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.http.Shutdown(ctx)
		cancel()
	}
	if err := a.pub.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing event publishers")
	}
	if err := a.dbh.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing database")
	}
}

func mustAppDataDir(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	p := filepath.Join(base, name)
	_ = os.MkdirAll(p, 0o755)
	return p
}
