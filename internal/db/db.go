package db

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const fileName = "stockhub.db"

type Handle struct {
	DB     *gorm.DB
	Driver string
	Path   string // sqlite file or redacted DSN
}

// Options selects the database driver. An empty DSN with a sqlite driver
// means <Dir>/stockhub.db.
type Options struct {
	Driver       string
	DSN          string
	Dir          string
	MaxOpenConns int
	Verbose      bool
	// Log receives gorm's slow query and error lines; nil discards them.
	Log *zerolog.Logger
}

func Open(opt Options) (*Handle, error) {
	driver := strings.ToLower(strings.TrimSpace(opt.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	var (
		dialector gorm.Dialector
		where     string
	)
	switch driver {
	case "sqlite", "sqlite-cgo":
		path := opt.DSN
		if path == "" {
			path = filepath.Join(opt.Dir, fileName)
		}
		where = path
		if driver == "sqlite" {
			// pure Go driver, no cgo toolchain needed on Windows
			dialector = sqlite.Open(path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		} else {
			dialector = cgosqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL")
		}
	case "postgres":
		dialector = postgres.Open(opt.DSN)
		where = redact(opt.DSN)
	case "mysql":
		dialector = mysql.Open(opt.DSN)
		where = redact(opt.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opt.Driver)
	}

	gdb, err := gorm.Open(dialector, gormConfig(opt.Log, opt.Verbose))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if opt.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opt.MaxOpenConns)
	} else if strings.HasPrefix(driver, "sqlite") {
		// single writer keeps sqlite free of "database is locked"
		sqlDB.SetMaxOpenConns(1)
	}

	return &Handle{DB: gdb, Driver: driver, Path: where}, nil
}

// OpenAt opens the default sqlite database inside dir.
func OpenAt(dir string) (*Handle, error) {
	return Open(Options{Driver: "sqlite", Dir: dir})
}

// OpenMemory opens a private in-memory sqlite database. Used by tests.
func OpenMemory() (*Handle, error) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), gormConfig(nil, false))
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// every new connection would see an empty database
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return &Handle{DB: gdb, Driver: "sqlite", Path: ":memory:"}, nil
}

func (h *Handle) Close() error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormConfig(log *zerolog.Logger, verbose bool) *gorm.Config {
	lvl, zlvl := logger.Warn, zerolog.WarnLevel
	if verbose {
		lvl, zlvl = logger.Info, zerolog.DebugLevel
	}
	zl := zerolog.Nop()
	if log != nil {
		zl = log.With().Str("component", "gorm").Logger()
	}
	return &gorm.Config{
		Logger: logger.New(gormWriter{log: zl, level: zlvl}, logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      lvl,
			// lookups by key report a missing row as ErrRecordNotFound
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// gormWriter routes gorm's printf-style output into zerolog.
type gormWriter struct {
	log   zerolog.Logger
	level zerolog.Level
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.WithLevel(w.level).Msgf(format, args...)
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "password="); i >= 0 {
		rest := dsn[i+len("password="):]
		end := strings.IndexByte(rest, ' ')
		if end < 0 {
			return dsn[:i] + "password=***"
		}
		return dsn[:i] + "password=***" + rest[end:]
	}
	if at := strings.LastIndexByte(dsn, '@'); at >= 0 {
		if colon := strings.IndexByte(dsn[:at], ':'); colon >= 0 {
			return dsn[:colon+1] + "***" + dsn[at:]
		}
	}
	return dsn
}
