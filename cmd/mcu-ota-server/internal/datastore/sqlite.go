package datastore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const upgradeHistoryColumns = "id, sn, device_id, code, version_m, version_n, version_l, success, created, changed"

// A SQLiteStore keeps the upgrade history in a local sqlite database.
type SQLiteStore struct {
	log *zap.SugaredLogger
	db  *sql.DB
}

// NewSQLite opens the database at path and migrates it to the latest schema.
func NewSQLite(ctx context.Context, log *zap.SugaredLogger, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{log: log.Named("sqlite"), db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Infow("database initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{s.log})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateUpgradeHistory creates a new upgrade history record.
func (s *SQLiteStore) CreateUpgradeHistory(ctx context.Context, h *ota.UpgradeHistory) error {
	prepare(h)
	d := toDoc(h)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO upgrade_history ("+upgradeHistoryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.SerialNumber, d.DeviceID, d.Code, d.VersionM, d.VersionN, d.VersionL, d.Success, d.Created.UTC(), d.Changed.UTC(),
	)
	if err != nil {
		return fmt.Errorf("cannot create upgrade history in database: %w", err)
	}
	return nil
}

// ListUpgradeHistory returns all upgrade history records.
func (s *SQLiteStore) ListUpgradeHistory(ctx context.Context) ([]ota.UpgradeHistory, error) {
	return s.query(ctx, "SELECT "+upgradeHistoryColumns+" FROM upgrade_history ORDER BY created")
}

// FindUpgradeHistoryByDevice returns the upgrade history of one device, newest first.
func (s *SQLiteStore) FindUpgradeHistoryByDevice(ctx context.Context, deviceID uint64) ([]ota.UpgradeHistory, error) {
	hh, err := s.query(ctx, "SELECT "+upgradeHistoryColumns+" FROM upgrade_history WHERE device_id = ? ORDER BY created", deviceKey(deviceID))
	if err != nil {
		return nil, err
	}
	return newestFirst(hh), nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]ota.UpgradeHistory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot search upgrade history in database: %w", err)
	}
	defer rows.Close()

	var docs []upgradeHistoryDoc
	for rows.Next() {
		var d upgradeHistoryDoc
		err := rows.Scan(&d.ID, &d.SerialNumber, &d.DeviceID, &d.Code, &d.VersionM, &d.VersionN, &d.VersionL, &d.Success, &d.Created, &d.Changed)
		if err != nil {
			return nil, fmt.Errorf("cannot read upgrade history row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fromDocs(docs)
}

// Health checks that the database answers.
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Fatalf(format, v...)
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Infof(format, v...)
}
