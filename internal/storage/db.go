package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/pkg/utils"
	_ "modernc.org/sqlite"
)

// MemoryDSN keeps the database inside the process; it vanishes on exit.
const MemoryDSN = ":memory:"

// SQLiteRepository stores device records in SQLite.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens dbPath and runs migrations. An empty path selects MemoryDSN.
func NewSQLite(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = MemoryDSN
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection that is never recycled: an in-memory database lives exactly as long as it.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	repo := &SQLiteRepository{db: db, logger: logger}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteRepository) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			location TEXT,
			metadata_json TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_devices_type ON devices(type);`,
		`CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, device model.Device) error {
	metadata, err := encodeMetadata(device.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, type, status, location, metadata_json, last_activity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		device.Name,
		string(device.Type),
		string(device.Status),
		fromStringPtr(device.Location),
		metadata,
		formatTime(device.LastActivity),
		formatTime(device.CreatedAt),
		formatTime(device.UpdatedAt),
	)
	if utils.IsUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", devicedomain.ErrDeviceConflict, device.ID)
	}
	return err
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (model.Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, type, status, location, metadata_json, last_activity, created_at, updated_at
		FROM devices WHERE id = ?`, id)
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Device{}, fmt.Errorf("%w: %s", devicedomain.ErrDeviceNotFound, id)
	}
	return device, err
}

func (r *SQLiteRepository) Save(ctx context.Context, device model.Device) error {
	metadata, err := encodeMetadata(device.Metadata)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			name = ?,
			type = ?,
			status = ?,
			location = ?,
			metadata_json = ?,
			last_activity = ?,
			updated_at = ?
		WHERE id = ?`,
		device.Name,
		string(device.Type),
		string(device.Status),
		fromStringPtr(device.Location),
		metadata,
		formatTime(device.LastActivity),
		formatTime(device.UpdatedAt),
		device.ID,
	)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: %s", devicedomain.ErrDeviceNotFound, device.ID)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *SQLiteRepository) List(ctx context.Context, filter devicedomain.ListFilter) ([]model.Device, error) {
	where := []string{}
	args := []any{}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT id, name, type, status, location, metadata_json, last_activity, created_at, updated_at FROM devices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, device)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (model.Device, error) {
	var (
		device                             model.Device
		deviceType, status, metadata       string
		location                           sql.NullString
		lastActivity, createdAt, updatedAt string
	)
	if err := row.Scan(&device.ID, &device.Name, &deviceType, &status, &location, &metadata, &lastActivity, &createdAt, &updatedAt); err != nil {
		return model.Device{}, err
	}
	device.Type = model.DeviceType(deviceType)
	device.Status = model.DeviceStatus(status)
	device.Location = strPtr(location)
	device.Metadata = decodeMetadata(metadata)
	device.LastActivity = parseTime(lastActivity)
	device.CreatedAt = parseTime(createdAt)
	device.UpdatedAt = parseTime(updatedAt)
	return device, nil
}

func encodeMetadata(metadata model.Metadata) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("%w: metadata: %v", devicedomain.ErrDeviceInvalid, err)
	}
	return string(body), nil
}

func decodeMetadata(raw string) model.Metadata {
	if strings.TrimSpace(raw) == "" || raw == "{}" {
		return nil
	}
	out := model.Metadata{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func formatTime(v time.Time) string {
	return v.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func fromStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
