package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodega-go/internal/backup"
	"bodega-go/internal/bodega"
	"bodega-go/internal/config"
	"bodega-go/internal/fs"
	"bodega-go/internal/model"
	"bodega-go/internal/testutil"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig("station-1", t.TempDir())
	cfg.LogLevel = "debug"
	return cfg
}

func openTestApp(t *testing.T, cfg *config.Config, clock bodega.Clock) *BodegaApp {
	t.Helper()
	a, err := newBodegaApp(context.Background(), cfg, "Test", deps{
		clock:   clock,
		fsys:    fs.NewOSFilesystem(),
		ids:     testutil.NewStubIDGenerator(),
		console: io.Discard,
	})
	require.NoError(t, err)
	return a
}

func openTestBackupApp(t *testing.T, cfg *config.Config, clock bodega.Clock) *BackupApp {
	t.Helper()
	a, err := newBackupApp(context.Background(), cfg, "Test", deps{
		clock:   clock,
		fsys:    fs.NewOSFilesystem(),
		ids:     testutil.NewStubIDGenerator(),
		console: io.Discard,
	})
	require.NoError(t, err)
	return a
}

func registerN(t *testing.T, a *BodegaApp, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := a.RegisterDevice(bodega.DeviceInput{
			Plant:    "UP01",
			SerialNo: "SN-00" + string(rune('1'+i)),
			Type:     "Laptop",
			Model:    "X1",
		})
		require.NoError(t, err)
	}
}

func deviceCount(t *testing.T, a *BodegaApp) int {
	t.Helper()
	res, err := a.Search("all", "")
	require.NoError(t, err)
	return res.Count()
}

func TestNewBodegaApp_RequiresMigration(t *testing.T) {
	cfg := newTestConfig(t)

	_, err := newBodegaApp(context.Background(), cfg, "Test", deps{
		clock:   testutil.FixedClock(),
		fsys:    fs.NewOSFilesystem(),
		ids:     testutil.NewStubIDGenerator(),
		console: io.Discard,
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "bodega db migrate")
}

func TestNewBodegaApp_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.StationID = ""

	_, err := NewBodegaApp(context.Background(), cfg, "Test")
	assert.ErrorContains(t, err, "station_id is required")
}

func TestInitialize(t *testing.T) {
	cfg := newTestConfig(t)

	status, err := Initialize(cfg, "")
	require.NoError(t, err)
	assert.Zero(t, status.Pending())
	assert.NotZero(t, status.Current)

	assert.DirExists(t, cfg.LogDir)
	assert.DirExists(t, cfg.Backup.Dir)
	assert.FileExists(t, cfg.Database.Path())

	before, after, err := Migrate(cfg)
	require.NoError(t, err)
	assert.Equal(t, before, after, "migrating twice is a no-op")
}

func TestInitialize_AgeKeys(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Encryption.Type = "age"
	require.True(t, NeedsPassphrase(cfg))

	_, err := Initialize(cfg, "correct horse")
	require.NoError(t, err)
	assert.FileExists(t, cfg.Encryption.PublicKeyPath)
	assert.FileExists(t, cfg.Encryption.PrivateKeyPath)
}

func TestBodegaApp_MemoryDatabase(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database.Type = "memory"

	a := openTestApp(t, cfg, testutil.FixedClock())
	defer a.Close()

	registerN(t, a, 2)
	assert.Equal(t, 2, deviceCount(t, a))
}

func TestBodegaApp_BackupAndRestore(t *testing.T) {
	cfg := newTestConfig(t)
	_, err := Initialize(cfg, "")
	require.NoError(t, err)

	clock := testutil.FixedClock()
	a := openTestApp(t, cfg, clock)
	registerN(t, a, 3)

	res := a.Backup(context.Background())
	require.Equal(t, backup.OutcomeCreated, res.Outcome, "%v", res.Err)

	artifacts, err := a.Backups()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	st, err := a.BackupStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)

	clock.Advance(time.Minute)
	_, err = a.RegisterDevice(bodega.DeviceInput{Plant: "UP02", SerialNo: "LATE-1", Type: "Monitor", Model: "P24"})
	require.NoError(t, err)
	require.Equal(t, 4, deviceCount(t, a))

	restored, err := a.Restore(artifacts[0].Path)
	require.NoError(t, err)
	assert.NotEmpty(t, restored.SafetyCopy)
	require.NoError(t, a.Close())

	a = openTestApp(t, cfg, clock)
	defer a.Close()
	assert.Equal(t, 3, deviceCount(t, a))
}

func TestBackupApp_RestoreMissingDataFile(t *testing.T) {
	cfg := newTestConfig(t)
	_, err := Initialize(cfg, "")
	require.NoError(t, err)

	clock := testutil.FixedClock()
	a := openTestApp(t, cfg, clock)
	registerN(t, a, 3)
	res := a.Backup(context.Background())
	require.Equal(t, backup.OutcomeCreated, res.Outcome, "%v", res.Err)
	require.NoError(t, a.Close())

	require.NoError(t, os.Remove(cfg.Database.Path()))

	clock.Advance(time.Minute)
	ba := openTestBackupApp(t, cfg, clock)
	_, statErr := os.Stat(cfg.Database.Path())
	assert.True(t, os.IsNotExist(statErr), "opening the backup app must not create the data file")

	restored, err := ba.Restore(res.Artifact.Path)
	require.NoError(t, err)
	assert.Empty(t, restored.SafetyCopy)
	assert.Equal(t, res.Artifact.SizeBytes, restored.Bytes)
	require.NoError(t, ba.Close())

	reopened := openTestApp(t, cfg, clock)
	defer reopened.Close()
	assert.Equal(t, 3, deviceCount(t, reopened))
}

func TestBackupApp_CorruptDataFile(t *testing.T) {
	cfg := newTestConfig(t)
	_, err := Initialize(cfg, "")
	require.NoError(t, err)

	clock := testutil.FixedClock()
	a := openTestApp(t, cfg, clock)
	registerN(t, a, 2)
	res := a.Backup(context.Background())
	require.Equal(t, backup.OutcomeCreated, res.Outcome, "%v", res.Err)
	require.NoError(t, a.Close())

	require.NoError(t, os.WriteFile(cfg.Database.Path(), []byte("not a database"), 0644))

	clock.Advance(time.Minute)
	ba := openTestBackupApp(t, cfg, clock)
	defer ba.Close()

	artifacts, err := ba.Backups()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	restored, err := ba.Restore(artifacts[0].Path)
	require.NoError(t, err)
	assert.NotEmpty(t, restored.SafetyCopy)

	reopened := openTestApp(t, cfg, clock)
	defer reopened.Close()
	assert.Equal(t, 2, deviceCount(t, reopened))
}

func TestBodegaApp_RemoteRestore(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Vaults = []config.VaultConfig{{Type: "memory", Name: "offsite"}}
	cfg.Encryption.Type = "test"
	cfg.Backup.EncryptMirror = true
	_, err := Initialize(cfg, "")
	require.NoError(t, err)

	clock := testutil.FixedClock()
	a := openTestApp(t, cfg, clock)
	defer a.Close()
	registerN(t, a, 2)

	res := a.Backup(context.Background())
	require.Equal(t, backup.OutcomeCreated, res.Outcome, "%v", res.Err)

	names, err := a.RemoteBackups("offsite")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.True(t, strings.HasSuffix(names[0], backup.EncryptedSuffix))

	// Lose the local copy so only the vault can bring the data back.
	require.NoError(t, os.Remove(res.Artifact.Path))

	_, err = a.RestoreRemote("offsite", names[0], "")
	require.NoError(t, err)

	entries, err := os.ReadDir(cfg.Backup.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".download"), "download file %s left behind", e.Name())
	}

	reopened := openTestApp(t, cfg, clock)
	defer reopened.Close()
	assert.Equal(t, 2, deviceCount(t, reopened))
}

func TestBodegaApp_UnknownVault(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database.Type = "memory"

	a := openTestApp(t, cfg, testutil.FixedClock())
	defer a.Close()

	_, err := a.RemoteBackups("")
	assert.ErrorContains(t, err, "no vaults configured")
	assert.True(t, a.op.Failed())
}

func TestBodegaApp_LogsTaggedWithOperation(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database.Type = "memory"

	a := openTestApp(t, cfg, testutil.FixedClock())
	registerN(t, a, 1)
	_, err := a.Search("observations", "x")
	require.Error(t, err)
	require.NoError(t, a.Close())

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\tINFO\tid-1\tdevice registered")
	assert.Contains(t, string(data), "status=error")
}

func TestWriteCSV(t *testing.T) {
	devices := []*model.Device{{
		ID:           7,
		Plant:        "UP02",
		SerialNo:     "SN-7",
		Type:         "Laptop",
		Model:        "X1, Carbon",
		FailureType:  "[0] Sin fallas",
		EntryDate:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Observations: "line one\nline two",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, devices))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"7", "UP02", "SN-7", "Laptop", "X1, Carbon", "[0] Sin fallas", "2024-01-15 10:30:00", "line one\nline two"}, records[1])
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.NewConfig("s", "/data")
	p := PolicyFromConfig(cfg.Backup)

	assert.Equal(t, backup.DefaultPolicy(), p)
	assert.NoError(t, p.Validate())
}
