// Package variantdb is the SQLite-backed variant store: schema
// management and bulk import, the compilation of filter trees into SQL,
// query execution, selections, and wordsets.
package variantdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/vardex/vardex/lib/annparse"
	"github.com/vardex/vardex/lib/config"
	"github.com/vardex/vardex/lib/logging"
)

// driverName is our sqlite3 driver with a regexp() function attached,
// which the REGEXP operator in compiled queries relies on.
const driverName = "sqlite3_vardex"

var registerDriverOnce sync.Once

func registerDriver() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", func(pattern, value string) (bool, error) {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return false, err
				}
				return re.MatchString(value), nil
			}, true)
		},
	})
}

type Params struct {
	Path      string
	Verbosity int
}

type dbOptions struct {
	batchSize        int
	parseWorkers     int
	maxLineBytes     int
	caseSamples      []string
	controlSamples   []string
	annotationHeader string
	annotationSchema annparse.Schema
	defaultLimit     int
}

func optionsFromConfig(cfg *config.Config) dbOptions {
	return dbOptions{
		batchSize:        cfg.Import.BatchSize,
		parseWorkers:     cfg.Import.ParseWorkers,
		maxLineBytes:     cfg.Import.MaxLineBytes,
		caseSamples:      cfg.Import.CaseSamples,
		controlSamples:   cfg.Import.ControlSamples,
		annotationHeader: cfg.Annotations.Header,
		annotationSchema: cfg.AnnotationSchema(),
		defaultLimit:     cfg.Query.DefaultLimit,
	}
}

// DB is an open variant database. Writes are serialized through a
// single connection; concurrent reads are as safe as SQLite makes
// them.
type DB struct {
	db        *sql.DB
	path      string
	verbosity int

	options dbOptions

	mu          sync.Mutex
	sampleCache map[string]int64
}

func Open(ctx context.Context, params Params, cfg *config.Config) (*DB, error) {
	registerDriverOnce.Do(registerDriver)

	logger := logging.FromContext(ctx)

	if cfg == nil {
		cfg = config.Default()
	}

	dsn := params.Path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// One connection: SQLite has a single writer, and this keeps the
	// connection-bound regexp() function and transactions predictable.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	d := &DB{
		db:        db,
		path:      params.Path,
		verbosity: params.Verbosity,
		options:   optionsFromConfig(cfg),
	}

	if params.Verbosity > 1 {
		logger.Info("connected", zap.String("path", params.Path))
	}

	if err := d.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("opened variant database", zap.String("path", params.Path))

	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path this store was opened on.
func (d *DB) Path() string {
	return d.path
}
