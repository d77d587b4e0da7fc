// Package resultstore keeps experiment runs in a SQLite ledger so that
// results from separate invocations can be merged later.
package resultstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/report"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const timeLayout = time.RFC3339Nano

// Store is a SQLite backed run ledger.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for migration and write messages.
func WithLogger(l log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open result store %s", path)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: log.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("result store opened", log.FilePathKey, path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "load embedded migrations")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "create sqlite migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, errors.Wrap(err, "create migrate instance")
	}
	m.Log = &migrateLogger{logger: s.logger}
	return m, nil
}

// migrateUp applies all pending migrations. The migrate instance is not
// closed because that would close the shared *sql.DB.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate result store")
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

type migrateLogger struct {
	logger log.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool { return false }

// SaveRun inserts run and its records in one transaction. Saving a run ID
// twice is an error.
func (s *Store) SaveRun(ctx context.Context, run *report.Run) (err error) {
	if err := run.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, source) VALUES (?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(timeLayout), run.Source,
	); err != nil {
		return errors.Wrapf(err, "insert run %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (
			run_id, seq, target, algorithm, preprocessing,
			scale, use_pca, n_components, derivative_order,
			r2, rmse, mae, n_samples, created_at, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare record insert")
	}
	defer stmt.Close()

	for i, rec := range run.Records {
		cfg := rec.Preprocessing.Normalize()
		created := rec.CreatedAt
		if created.IsZero() {
			created = run.CreatedAt
		}
		if _, err = stmt.ExecContext(ctx,
			run.ID, i, rec.Target, rec.Algorithm, cfg.Key(),
			boolInt(cfg.Scale), boolInt(cfg.UsePCA), cfg.NComponents, cfg.DerivativeOrder,
			nullFloat(rec.R2), nullFloat(rec.RMSE), nullFloat(rec.MAE),
			rec.NSamples, created.UTC().Format(timeLayout), rec.Error,
		); err != nil {
			return errors.Wrapf(err, "insert record %d of run %s", i, run.ID)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit run")
	}
	s.logger.Info("run saved", log.RunIDKey, run.ID, "records", len(run.Records))
	return nil
}

// Runs returns every stored run ordered by creation time then ID, records
// in insertion order. Record RunIDs are set to their run.
func (s *Store) Runs(ctx context.Context) ([]*report.Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, source FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	var runs []*report.Run
	index := make(map[string]*report.Run)
	for rows.Next() {
		var id, created, source string
		if err := rows.Scan(&id, &created, &source); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan run")
		}
		t, err := time.Parse(timeLayout, created)
		if err != nil {
			rows.Close()
			return nil, errors.Wrapf(err, "parse created_at of run %s", id)
		}
		run := &report.Run{ID: id, CreatedAt: t, Source: source}
		runs = append(runs, run)
		index[id] = run
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	recs, err := s.db.QueryContext(ctx, `
		SELECT run_id, target, algorithm, scale, use_pca, n_components, derivative_order,
		       r2, rmse, mae, n_samples, created_at, error
		FROM records ORDER BY run_id, seq`)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	defer recs.Close()
	for recs.Next() {
		var (
			runID, created string
			rec            report.Record
			scale, usePCA  int
			r2, rmse, mae  sql.NullFloat64
		)
		if err := recs.Scan(&runID, &rec.Target, &rec.Algorithm, &scale, &usePCA,
			&rec.Preprocessing.NComponents, &rec.Preprocessing.DerivativeOrder,
			&r2, &rmse, &mae, &rec.NSamples, &created, &rec.Error); err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		rec.Preprocessing.Scale = scale != 0
		rec.Preprocessing.UsePCA = usePCA != 0
		rec.Preprocessing = rec.Preprocessing.Normalize()
		rec.R2, rec.RMSE, rec.MAE = floatPtr(r2), floatPtr(rmse), floatPtr(mae)
		rec.RunID = runID
		if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, errors.Wrapf(err, "parse created_at of record in run %s", runID)
		}
		if run, ok := index[runID]; ok {
			run.Records = append(run.Records, rec)
		}
	}
	return runs, errors.Wrap(recs.Err(), "iterate records")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return report.Float(v.Float64)
}
