package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"bodega-go/internal/backup"
	"bodega-go/internal/bodega"
	"bodega-go/internal/config"
	"bodega-go/internal/database"
	"bodega-go/internal/database/migrations"
	"bodega-go/internal/encryption"
	"bodega-go/internal/fs"
	"bodega-go/internal/model"
	"bodega-go/internal/vault"
)

// BackupApp wires the backup side of the application: config, scheduler,
// mirrors and logger. It never opens the inventory database, so it works
// when the data file is missing or damaged.
type BackupApp struct {
	cfg       *config.Config
	fsys      bodega.Filesystem
	scheduler *backup.Scheduler
	logger    bodega.Logger
	clock     bodega.Clock
	op        *Operation
	logFile   *os.File
}

// BodegaApp is the application layer between the CLI and the inventory
// service. It adds the open inventory database to a BackupApp and closes
// both on Close.
type BodegaApp struct {
	*BackupApp
	store   *database.SQLiteDatabase
	service *bodega.InventoryService
	closed  bool
}

// deps are the pieces the constructors take from the host. Tests replace them.
type deps struct {
	clock   bodega.Clock
	fsys    bodega.Filesystem
	ids     bodega.IDGenerator
	console io.Writer
}

func hostDeps() deps {
	return deps{
		clock:   bodega.RealClock{},
		fsys:    fs.NewOSFilesystem(),
		ids:     bodega.UUIDGenerator{},
		console: os.Stderr,
	}
}

// NewBackupApp creates a BackupApp from the given config.
// operation identifies the CLI command being run (e.g. "Restore").
// The caller must call Close when done.
func NewBackupApp(ctx context.Context, cfg *config.Config, operation string) (*BackupApp, error) {
	return newBackupApp(ctx, cfg, operation, hostDeps())
}

// NewBodegaApp creates a fully wired BodegaApp from the given config.
// operation identifies the CLI command being run (e.g. "Register", "Delete").
// The caller must call Close when done.
func NewBodegaApp(ctx context.Context, cfg *config.Config, operation string) (*BodegaApp, error) {
	return newBodegaApp(ctx, cfg, operation, hostDeps())
}

func newBackupApp(ctx context.Context, cfg *config.Config, operation string, d deps) (*BackupApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := NewOperation(operation, shortID(d.ids.New()), d.clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, cfg.LogLevel, d.console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	naming := backup.Naming{Prefix: cfg.Backup.Prefix, Ext: cfg.Backup.Extension}
	var mirrors []*backup.Mirror
	for _, vc := range cfg.Vaults {
		v, err := vault.NewVaultFromConfig(ctx, vc)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("creating vault %s: %w", vc.Name, err)
		}
		var mirrorEnc bodega.Encryptor
		if cfg.Backup.EncryptMirror {
			mirrorEnc = enc
		}
		mirrors = append(mirrors, backup.NewMirror(vc.Name, v, mirrorEnc, cfg.StationID, naming, cfg.Backup.MaxRetained, logger))
	}

	scheduler := backup.NewScheduler(backup.Config{
		Policy:     PolicyFromConfig(cfg.Backup),
		SourcePath: cfg.Database.Path(),
		Dir:        cfg.Backup.Dir,
		Naming:     naming,
	}, d.fsys, d.clock, logger, mirrors...)

	logger.Debug("operation started", "operation", op.Name, "station", cfg.StationID)

	return &BackupApp{
		cfg:       cfg,
		fsys:      d.fsys,
		scheduler: scheduler,
		logger:    logger,
		clock:     d.clock,
		op:        op,
		logFile:   logFile,
	}, nil
}

func newBodegaApp(ctx context.Context, cfg *config.Config, operation string, d deps) (*BodegaApp, error) {
	ba, err := newBackupApp(ctx, cfg, operation, d)
	if err != nil {
		return nil, err
	}

	fail := func(err error, closers ...io.Closer) (*BodegaApp, error) {
		for _, c := range closers {
			c.Close()
		}
		ba.op.Fail()
		ba.Close()
		return nil, err
	}

	store, err := database.NewDatabaseFromConfig(cfg.Database, d.clock)
	if err != nil {
		return fail(fmt.Errorf("creating database: %w", err))
	}
	if cfg.Database.Type == "memory" {
		if err := store.Migrate(); err != nil {
			return fail(fmt.Errorf("migrating in-memory database: %w", err), store)
		}
	}
	if err := store.CheckMigrations(); err != nil {
		return fail(fmt.Errorf("database schema out of date (run `bodega db migrate`): %w", err), store)
	}

	guard := bodega.NewGuard(bodega.GuardPolicy{ModelConfirmThreshold: cfg.Guard.ModelConfirmThreshold})
	svc := bodega.NewInventoryService(store, guard, ba.logger, d.clock)

	return &BodegaApp{
		BackupApp: ba,
		store:     store,
		service:   svc,
	}, nil
}

// PolicyFromConfig converts the [backup] section into a scheduler policy.
func PolicyFromConfig(b config.BackupConfig) backup.Policy {
	return backup.Policy{
		Enabled:            b.Enabled,
		Interval:           time.Duration(b.IntervalHours) * time.Hour,
		MaxRetained:        b.MaxRetained,
		MinSourceSizeBytes: b.MinSourceSizeBytes,
		OnStart:            b.OnStart,
		OnExit:             b.OnExit,
		CheckInterval:      time.Duration(b.CheckIntervalMinutes) * time.Minute,
	}
}

// Config returns the configuration the app was built from.
func (a *BackupApp) Config() *config.Config {
	return a.cfg
}

// track marks the operation failed when err is non-nil and passes err through.
func (a *BackupApp) track(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

// RegisterDevice validates and stores a new device.
func (a *BodegaApp) RegisterDevice(in bodega.DeviceInput) (*model.Device, error) {
	d, err := a.service.Register(in)
	return d, a.track(err)
}

// EditDevice replaces the editable fields of a device.
func (a *BodegaApp) EditDevice(id int64, in bodega.DeviceInput) (*model.Device, error) {
	d, err := a.service.Edit(id, in)
	return d, a.track(err)
}

// Device returns one device by id.
func (a *BodegaApp) Device(id int64) (*model.Device, error) {
	d, err := a.service.Get(id)
	return d, a.track(err)
}

// Search parses the scope label and runs the search.
func (a *BodegaApp) Search(scopeLabel, term string) (*bodega.SearchResult, error) {
	scope, err := bodega.ParseScope(scopeLabel)
	if err != nil {
		return nil, a.track(err)
	}
	res, err := a.service.Search(scope, term)
	return res, a.track(err)
}

// DeleteScoped runs a guarded bulk delete of a search result.
func (a *BodegaApp) DeleteScoped(res *bodega.SearchResult, confirmer bodega.Confirmer) (*bodega.DeleteOutcome, error) {
	outcome, err := a.service.DeleteScoped(res, confirmer)
	return outcome, a.track(err)
}

// DeleteRecord deletes one device by id after confirmation.
func (a *BodegaApp) DeleteRecord(id int64, confirmer bodega.Confirmer) (*bodega.DeleteOutcome, error) {
	outcome, err := a.service.DeleteRecord(id, confirmer)
	return outcome, a.track(err)
}

// History returns the most recent change log entries.
func (a *BodegaApp) History(limit int) ([]*model.ChangeLog, error) {
	logs, err := a.service.History(limit)
	return logs, a.track(err)
}

// Backup runs a manual backup check: create, prune and mirror.
func (a *BackupApp) Backup(ctx context.Context) backup.Result {
	res := a.scheduler.Check(ctx, backup.TriggerManual)
	if res.Outcome == backup.OutcomeFailed {
		a.op.Fail()
	}
	return res
}

// Backups lists the local backup artifacts, oldest first.
func (a *BackupApp) Backups() ([]backup.Artifact, error) {
	as, err := a.scheduler.Artifacts()
	return as, a.track(err)
}

// Cleanup prunes local artifacts beyond the retention count.
func (a *BackupApp) Cleanup() (int, error) {
	n, err := a.scheduler.Prune()
	return n, a.track(err)
}

// BackupStatus summarises the backup directory.
func (a *BackupApp) BackupStatus() (backup.Status, error) {
	st, err := a.scheduler.Status()
	return st, a.track(err)
}

// Restore replaces the inventory database with a backup. A missing or
// damaged data file is simply replaced.
func (a *BackupApp) Restore(backupPath string) (backup.RestoreResult, error) {
	abs, err := filepath.Abs(backupPath)
	if err != nil {
		return backup.RestoreResult{}, a.track(fmt.Errorf("resolving path: %w", err))
	}
	res, err := a.scheduler.Restore(abs, a.cfg.Database.Path())
	return res, a.track(err)
}

// Restore closes the database, then replaces it with a backup. The app
// cannot be used for inventory operations afterwards.
func (a *BodegaApp) Restore(backupPath string) (backup.RestoreResult, error) {
	if err := a.closeStore(); err != nil {
		return backup.RestoreResult{}, a.track(err)
	}
	return a.BackupApp.Restore(backupPath)
}

// RemoteBackups lists the artifacts held by a configured vault.
func (a *BackupApp) RemoteBackups(vaultName string) ([]string, error) {
	m, err := a.mirror(vaultName)
	if err != nil {
		return nil, a.track(err)
	}
	names, err := m.List()
	return names, a.track(err)
}

// RestoreRemote downloads an artifact from a vault into the backup
// directory and restores it. passphrase unlocks encrypted artifacts.
func (a *BackupApp) RestoreRemote(vaultName, name, passphrase string) (backup.RestoreResult, error) {
	res, err := a.restoreRemote(vaultName, name, passphrase)
	return res, a.track(err)
}

// RestoreRemote closes the database, then restores a vault artifact over it.
func (a *BodegaApp) RestoreRemote(vaultName, name, passphrase string) (backup.RestoreResult, error) {
	if err := a.closeStore(); err != nil {
		return backup.RestoreResult{}, a.track(err)
	}
	return a.BackupApp.RestoreRemote(vaultName, name, passphrase)
}

func (a *BackupApp) restoreRemote(vaultName, name, passphrase string) (backup.RestoreResult, error) {
	m, err := a.mirror(vaultName)
	if err != nil {
		return backup.RestoreResult{}, err
	}

	if err := a.fsys.MkdirAll(a.cfg.Backup.Dir); err != nil {
		return backup.RestoreResult{}, fmt.Errorf("creating backup directory: %w", err)
	}
	tmp, err := os.CreateTemp(a.cfg.Backup.Dir, "remote-*.download")
	if err != nil {
		return backup.RestoreResult{}, fmt.Errorf("creating download file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := m.Fetch(name, tmp, passphrase); err != nil {
		tmp.Close()
		return backup.RestoreResult{}, err
	}
	if err := tmp.Close(); err != nil {
		return backup.RestoreResult{}, fmt.Errorf("writing download file: %w", err)
	}

	a.logger.Info("remote backup downloaded", "vault", vaultName, "artifact", name)
	return a.scheduler.Restore(tmp.Name(), a.cfg.Database.Path())
}

func (a *BackupApp) mirror(name string) (*backup.Mirror, error) {
	mirrors := a.scheduler.Mirrors()
	if len(mirrors) == 0 {
		return nil, errors.New("no vaults configured")
	}
	if name == "" {
		return mirrors[0], nil
	}
	for _, m := range mirrors {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no vault named %q", name)
}

// Watch runs the startup, periodic and exit backup checks until ctx is cancelled.
func (a *BackupApp) Watch(ctx context.Context) []backup.Result {
	a.logger.Info("watching for backups", "interval", a.scheduler.Policy().CheckInterval.String(), "dir", a.cfg.Backup.Dir)
	results := a.scheduler.Watch(ctx)
	for _, r := range results {
		if r.Outcome == backup.OutcomeFailed {
			a.op.Fail()
		}
	}
	return results
}

// Export writes a search result as CSV.
func (a *BodegaApp) Export(w io.Writer, res *bodega.SearchResult) error {
	return a.track(WriteCSV(w, res.Devices))
}

func (a *BodegaApp) closeStore() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Close logs the end of the operation and closes the log file.
func (a *BackupApp) Close() error {
	a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed(a.clock.Now()).String())

	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
	}
	return nil
}

// Close closes the database and then the backup side.
func (a *BodegaApp) Close() error {
	storeErr := a.closeStore()
	if err := a.BackupApp.Close(); err != nil && storeErr == nil {
		return err
	}
	return storeErr
}

// Initialize prepares a freshly written config: data, backup and log
// directories, the migrated database, and encryption keys when the
// encryption type needs them.
func Initialize(cfg *config.Config, passphrase string) (migrations.Status, error) {
	if err := cfg.Validate(); err != nil {
		return migrations.Status{}, fmt.Errorf("invalid config: %w", err)
	}

	for _, dir := range []string{cfg.LogDir, cfg.Backup.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return migrations.Status{}, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	status, err := migrate(cfg)
	if err != nil {
		return status, err
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return status, fmt.Errorf("creating encryptor: %w", err)
	}
	if enc != nil && !enc.IsConfigured() {
		if err := enc.Setup(passphrase); err != nil {
			return status, fmt.Errorf("setting up encryption: %w", err)
		}
	}
	return status, nil
}

// Migrate brings the inventory database schema up to date and returns the
// status before and after.
func Migrate(cfg *config.Config) (before, after migrations.Status, err error) {
	store, err := database.NewDatabaseFromConfig(cfg.Database, bodega.RealClock{})
	if err != nil {
		return before, after, fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	before, err = store.MigrationStatus()
	if err != nil {
		return before, after, err
	}
	if err := store.Migrate(); err != nil {
		return before, after, err
	}
	after, err = store.MigrationStatus()
	return before, after, err
}

func migrate(cfg *config.Config) (migrations.Status, error) {
	_, after, err := Migrate(cfg)
	return after, err
}

// NeedsPassphrase reports whether Initialize will generate keys protected by a passphrase.
func NeedsPassphrase(cfg *config.Config) bool {
	return cfg.Encryption.Type == "age"
}
