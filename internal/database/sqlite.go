package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"bodega-go/internal/bodega"
	"bodega-go/internal/database/migrations"
	"bodega-go/internal/model"
)

// busyTimeoutMillis is how long a statement waits on a locked database file.
const busyTimeoutMillis = 5000

// Change log actions.
const (
	actionInsert = "INSERT"
	actionUpdate = "UPDATE"
	actionDelete = "DELETE"
)

const deviceColumns = "id, plant, serialno, type, model, failure_type, entry_date, observations"

// fieldColumns is the allowlist of filterable columns. Field values are never
// interpolated into SQL without passing through it.
var fieldColumns = map[bodega.Field]string{
	bodega.FieldSerialNo:  "serialno",
	bodega.FieldModel:     "model",
	bodega.FieldType:      "type",
	bodega.FieldPlant:     "plant",
	bodega.FieldEntryDate: "entry_date",
}

// SQLiteDatabase implements bodega.Store using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	clock bodega.Clock
	path  string
}

// NewSQLiteDatabase opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock uses the real clock for change log timestamps.
func NewSQLiteDatabase(path string, clock bodega.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteDatabaseFromDB(db, path, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string, clock bodega.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = bodega.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock, path: path}
}

// OpenConnection opens and configures a SQLite connection.
// The pool is pinned to a single connection: PRAGMAs are per connection and an
// in-memory database exists only inside the connection that created it.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Device operations

func (s *SQLiteDatabase) Insert(device *model.Device) (int64, error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO devices (plant, serialno, type, model, failure_type, entry_date, observations)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		device.Plant, device.SerialNo, device.Type, device.Model, device.FailureType,
		formatTime(device.EntryDate), device.Observations,
	)
	if err != nil {
		return 0, translateError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}

	details := fmt.Sprintf("serialno=%s plant=%s type=%s model=%s", device.SerialNo, device.Plant, device.Type, device.Model)
	if err := s.logChange(ctx, tx, id, actionInsert, details); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing insert: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) Update(device *model.Device) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := scanDevice(tx.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE id = ?", device.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bodega.ErrNotFound
		}
		return fmt.Errorf("loading device %d: %w", device.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE devices
		 SET plant = ?, serialno = ?, type = ?, model = ?, failure_type = ?, observations = ?
		 WHERE id = ?`,
		device.Plant, device.SerialNo, device.Type, device.Model, device.FailureType,
		device.Observations, device.ID,
	)
	if err != nil {
		return translateError(err)
	}

	if err := s.logChange(ctx, tx, device.ID, actionUpdate, describeChanges(before, device)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindByID(id int64) (*model.Device, error) {
	device, err := scanDevice(s.db.QueryRow("SELECT "+deviceColumns+" FROM devices WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding device by id: %w", err)
	}
	return device, nil
}

func (s *SQLiteDatabase) DeleteByID(id int64) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := s.deleteMatching(ctx, tx, "id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return bodega.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteWhere(field bodega.Field, value string, exact bool) (int64, error) {
	where, args, err := filterClause(field, value, exact)
	if err != nil {
		return 0, err
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := s.deleteMatching(ctx, tx, where, args...)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	return n, nil
}

// deleteMatching removes the rows selected by where and logs one DELETE per row.
func (s *SQLiteDatabase) deleteMatching(ctx context.Context, tx *sql.Tx, where string, args ...any) (int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("selecting devices to delete: %w", err)
	}
	victims, err := collectDevices(rows)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting devices: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading deleted count: %w", err)
	}

	for _, d := range victims {
		details := fmt.Sprintf("serialno=%s model=%s plant=%s", d.SerialNo, d.Model, d.Plant)
		if err := s.logChange(ctx, tx, d.ID, actionDelete, details); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *SQLiteDatabase) QueryWhere(field bodega.Field, value string) ([]*model.Device, error) {
	where, args, err := filterClause(field, value, false)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT "+deviceColumns+" FROM devices WHERE "+where+" ORDER BY entry_date DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices by %s: %w", field, err)
	}
	return collectDevices(rows)
}

func (s *SQLiteDatabase) QueryAll() ([]*model.Device, error) {
	rows, err := s.db.Query("SELECT " + deviceColumns + " FROM devices ORDER BY entry_date DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return collectDevices(rows)
}

// Change log operations

func (s *SQLiteDatabase) ListChangeLogs(limit int) ([]*model.ChangeLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		"SELECT id, device_id, action, details, changed_at FROM change_logs ORDER BY changed_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing change logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.ChangeLog
	for rows.Next() {
		var (
			l         model.ChangeLog
			changedAt string
		)
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.Action, &l.Details, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning change log: %w", err)
		}
		if l.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func (s *SQLiteDatabase) logChange(ctx context.Context, tx *sql.Tx, deviceID int64, action, details string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO change_logs (device_id, action, details, changed_at) VALUES (?, ?, ?, ?)",
		deviceID, action, details, formatTime(s.clock.Now()),
	)
	if err != nil {
		return fmt.Errorf("recording %s change for device %d: %w", action, deviceID, err)
	}
	return nil
}

// Maintenance

// Path returns the file the database was opened from.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate applies pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// MigrationStatus reports the current and latest schema versions.
func (s *SQLiteDatabase) MigrationStatus() (migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// filterClause builds the WHERE clause for a field filter. Substring matches
// escape LIKE wildcards so serial numbers containing '_' match literally.
func filterClause(field bodega.Field, value string, exact bool) (string, []any, error) {
	column, ok := fieldColumns[field]
	if !ok {
		return "", nil, fmt.Errorf("unknown device field %q", field)
	}

	switch {
	case field == bodega.FieldEntryDate && exact:
		if !bodega.DayPrecision(value) {
			return "", nil, fmt.Errorf("exact date match needs a day or a full timestamp, got %q", value)
		}
		return "substr(entry_date, 1, length(?)) = ?", []any{value, value}, nil
	case field == bodega.FieldEntryDate:
		return `entry_date LIKE ? ESCAPE '\'`, []any{escapeLike(value) + "%"}, nil
	case exact:
		return column + " = ?", []any{value}, nil
	default:
		return column + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(value) + "%"}, nil
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*model.Device, error) {
	var (
		d         model.Device
		entryDate string
	)
	if err := row.Scan(&d.ID, &d.Plant, &d.SerialNo, &d.Type, &d.Model, &d.FailureType, &entryDate, &d.Observations); err != nil {
		return nil, err
	}
	t, err := parseTime(entryDate)
	if err != nil {
		return nil, err
	}
	d.EntryDate = t
	return &d, nil
}

func collectDevices(rows *sql.Rows) ([]*model.Device, error) {
	defer rows.Close()

	var devices []*model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func describeChanges(before, after *model.Device) string {
	var changes []string
	add := func(name, old, new string) {
		if old != new {
			changes = append(changes, fmt.Sprintf("%s: %q -> %q", name, old, new))
		}
	}
	add("plant", before.Plant, after.Plant)
	add("serialno", before.SerialNo, after.SerialNo)
	add("type", before.Type, after.Type)
	add("model", before.Model, after.Model)
	add("failure_type", before.FailureType, after.FailureType)
	add("observations", before.Observations, after.Observations)

	if len(changes) == 0 {
		return "no changes"
	}
	return strings.Join(changes, "; ")
}

// translateError maps driver constraint errors onto domain errors.
func translateError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return bodega.ErrDuplicateSerial
	}
	return fmt.Errorf("writing device: %w", err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(bodega.EntryDateLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(bodega.EntryDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// Compile-time check that SQLiteDatabase implements bodega.Store
var _ bodega.Store = (*SQLiteDatabase)(nil)
