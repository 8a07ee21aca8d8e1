package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"bodega-go/internal/app"
	"bodega-go/internal/backup"
	"bodega-go/internal/bodega"
	"bodega-go/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from the default location.
func loadConfig() (*config.Config, string, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, "", fmt.Errorf("resolving paths: %w", err)
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, paths.ConfigPath, nil
}

// newApp reads the config and creates a BodegaApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Register", "Backup").
func newApp(ctx context.Context, operation string) (*app.BodegaApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewBodegaApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// newBackupApp reads the config and creates a BackupApp, which never opens
// the inventory database. The caller must defer app.Close().
func newBackupApp(ctx context.Context, operation string) (*app.BackupApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewBackupApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid device id %q", s)
	}
	return id, nil
}

var rootCmd = &cobra.Command{
	Use:           "bodega",
	Short:         "Plant device inventory with guarded deletes and rotating backups",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration, database and keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		encType, _ := cmd.Flags().GetString("encryption")

		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("resolving paths: %w", err)
		}

		stationID := uuid.New().String()
		cfg := config.NewConfig(stationID, paths.BaseDir)
		cfg.Encryption.Type = encType

		var passphrase string
		if app.NeedsPassphrase(cfg) {
			passphrase, err = promptPassphrase(cmd.OutOrStdout(), "Passphrase for the backup encryption key: ", true)
			if err != nil {
				return err
			}
		}

		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		status, err := app.Initialize(cfg, passphrase)
		if err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Station ID: %s\n", stationID)
		fmt.Printf("Base Dir:   %s\n", paths.BaseDir)
		fmt.Printf("Database:   %s (schema version %d)\n", cfg.Database.Path(), status.Current)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		b := cfg.Backup
		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Station ID:   %s\n", cfg.StationID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s (%s)\n", cfg.LogDir, cfg.LogLevel)
		fmt.Printf("Database:     %s\n", cfg.Database.Path())
		fmt.Printf("Backups:      %s (enabled=%t)\n", b.Dir, b.Enabled)
		fmt.Printf("  naming:     %s_<YYYYMMDD_HHMMSS>.%s\n", b.Prefix, b.Extension)
		fmt.Printf("  interval:   %dh, keep %d, min source %s\n", b.IntervalHours, b.MaxRetained, humanize.Bytes(uint64(b.MinSourceSizeBytes)))
		fmt.Printf("  triggers:   on_start=%t on_exit=%t check every %dm\n", b.OnStart, b.OnExit, b.CheckIntervalMinutes)
		fmt.Printf("Guard:        double confirm above %d devices of one model\n", cfg.Guard.ModelConfirmThreshold)
		fmt.Printf("Encryption:   %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:        %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the inventory database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		before, after, err := app.Migrate(cfg)
		if err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}

		if before.Current == after.Current {
			fmt.Printf("Database already at schema version %d\n", after.Current)
			return nil
		}
		fmt.Printf("Database migrated from schema version %d to %d\n", before.Current, after.Current)
		return nil
	},
}

// device command
var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Register, edit and show devices",
}

func deviceFlags(cmd *cobra.Command) {
	cmd.Flags().String("plant", "", "Plant code or name (see `bodega catalog`)")
	cmd.Flags().String("serial", "", "Serial number")
	cmd.Flags().String("type", "", "Device type")
	cmd.Flags().String("model", "", "Model")
	cmd.Flags().String("failure", "", "Failure classification or its code (default [0] Sin fallas)")
	cmd.Flags().String("notes", "", "Observations")
}

// applyDeviceFlags overwrites fields of in with every flag the user set.
func applyDeviceFlags(cmd *cobra.Command, in *bodega.DeviceInput) {
	set := func(name string, field *string) {
		if cmd.Flags().Changed(name) {
			*field, _ = cmd.Flags().GetString(name)
		}
	}
	set("plant", &in.Plant)
	set("serial", &in.SerialNo)
	set("type", &in.Type)
	set("model", &in.Model)
	set("failure", &in.FailureType)
	set("notes", &in.Observations)
}

var deviceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a device",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Register")
		if err != nil {
			return err
		}
		defer a.Close()

		var in bodega.DeviceInput
		applyDeviceFlags(cmd, &in)

		d, err := a.RegisterDevice(in)
		if err != nil {
			return err
		}

		fmt.Printf("Registered device #%d (%s)\n", d.ID, d.SerialNo)
		return nil
	},
}

var deviceEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit a device; unset flags keep their current value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "Edit")
		if err != nil {
			return err
		}
		defer a.Close()

		current, err := a.Device(id)
		if err != nil {
			return err
		}

		in := bodega.DeviceInput{
			Plant:        current.Plant,
			SerialNo:     current.SerialNo,
			Type:         current.Type,
			Model:        current.Model,
			FailureType:  current.FailureType,
			Observations: current.Observations,
		}
		applyDeviceFlags(cmd, &in)

		d, err := a.EditDevice(id, in)
		if err != nil {
			return err
		}

		fmt.Printf("Updated device #%d\n", d.ID)
		printDevice(d)
		return nil
	},
}

var deviceShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "Show")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Device(id)
		if err != nil {
			return err
		}
		printDevice(d)
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search [TERM]",
	Short: "Search devices by scope",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")

		a, err := newApp(cmd.Context(), "Search")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Search(by, argOrEmpty(args))
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete [ID | --by SCOPE TERM]",
	Short: "Delete one device, or every device found by a search",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		assumeYes, _ := cmd.Flags().GetBool("yes")

		if by == "" && len(args) == 0 {
			return errors.New("give a device ID or --by SCOPE TERM")
		}

		a, err := newApp(cmd.Context(), "Delete")
		if err != nil {
			return err
		}
		defer a.Close()

		confirmer := newPromptConfirmer(assumeYes)

		if by == "" {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			outcome, err := a.DeleteRecord(id, confirmer)
			if err != nil {
				return err
			}
			if !outcome.Confirmed {
				fmt.Println("Cancelled.")
				return nil
			}
			fmt.Printf("Deleted device #%d\n", id)
			return nil
		}

		res, err := a.Search(by, argOrEmpty(args))
		if err != nil {
			return err
		}
		if res.Count() == 0 {
			fmt.Println("No devices found; nothing to delete.")
			return nil
		}
		printResult(res)

		outcome, err := a.DeleteScoped(res, confirmer)
		if err != nil {
			return err
		}
		if !outcome.Confirmed {
			fmt.Println("Cancelled.")
			return nil
		}

		fmt.Printf("Deleted %d device(s)\n", outcome.Deleted)
		if outcome.Mismatch() {
			fmt.Printf("Note: the search showed %d device(s) but %d matched exactly and were deleted. Search again to review what remains.\n",
				outcome.Expected, outcome.Deleted)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the inventory change log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer a.Close()

		logs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(logs) == 0 {
			fmt.Println("No changes recorded.")
			return nil
		}

		for _, l := range logs {
			fmt.Printf("%s  %-6s  #%-5d  %s\n",
				l.ChangedAt.UTC().Format(bodega.EntryDateLayout),
				l.Action,
				l.DeviceID,
				l.Details,
			)
		}
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export [TERM]",
	Short: "Export a search result as CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd.Context(), "Export")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Search(by, argOrEmpty(args))
		if err != nil {
			return err
		}

		f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		if err := a.Export(f, res); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}

		fmt.Printf("Exported %d device(s) to %s\n", res.Count(), out)
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the inventory database now",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the inventory database now",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	a, err := newBackupApp(cmd.Context(), "Backup")
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.Backup(cmd.Context())
	if res.Outcome == backup.OutcomeFailed {
		return fmt.Errorf("backup failed: %w", res.Err)
	}

	fmt.Printf("Backup created: %s (%s)\n", res.Artifact.Path, humanize.Bytes(uint64(res.Artifact.SizeBytes)))
	if res.Pruned > 0 {
		fmt.Printf("Removed %d old backup(s)\n", res.Pruned)
	}
	return nil
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [PATH]",
	Short: "Replace the inventory database with a backup",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetString("remote")
		vaultName, _ := cmd.Flags().GetString("vault")
		assumeYes, _ := cmd.Flags().GetBool("yes")

		if (remote == "") == (len(args) == 0) {
			return errors.New("give either a backup PATH or --remote NAME")
		}

		a, err := newBackupApp(cmd.Context(), "Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		source := argOrEmpty(args)
		if remote != "" {
			source = remote
		}
		ok, err := newPromptConfirmer(assumeYes).Confirm(
			fmt.Sprintf("Replace %s with %s? An existing database is kept as a pre-restore copy.", a.Config().Database.Path(), source))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}

		var res backup.RestoreResult
		if remote != "" {
			var passphrase string
			if backup.Encrypted(remote) {
				passphrase, err = promptPassphrase(cmd.OutOrStdout(), "Passphrase: ", false)
				if err != nil {
					return err
				}
			}
			res, err = a.RestoreRemote(vaultName, remote, passphrase)
		} else {
			res, err = a.Restore(args[0])
		}
		if err != nil {
			return err
		}

		fmt.Printf("Restored %s (%s)\n", res.Target, humanize.Bytes(uint64(res.Bytes)))
		if res.SafetyCopy != "" {
			fmt.Printf("Previous database saved as %s\n", res.SafetyCopy)
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest last",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")
		vaultName, _ := cmd.Flags().GetString("vault")

		a, err := newBackupApp(cmd.Context(), "ListBackups")
		if err != nil {
			return err
		}
		defer a.Close()

		if remote {
			names, err := a.RemoteBackups(vaultName)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("No remote backups.")
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		}

		artifacts, err := a.Backups()
		if err != nil {
			return err
		}
		if len(artifacts) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, art := range artifacts {
			printArtifact(art)
		}
		return nil
	},
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete backups beyond the retention count",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newBackupApp(cmd.Context(), "Cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Cleanup()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d old backup(s)\n", n)
		return nil
	},
}

var backupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the newest backup and when the next one is due",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newBackupApp(cmd.Context(), "BackupStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.BackupStatus()
		if err != nil {
			return err
		}

		fmt.Printf("Automatic backups: %t\n", st.Enabled)
		fmt.Printf("Backups:           %d (%s)\n", st.Count, humanize.Bytes(uint64(st.TotalBytes)))
		fmt.Printf("Safety copies:     %d\n", st.SafetyCount)
		if st.Last == nil {
			fmt.Println("Last backup:       never")
		} else {
			fmt.Printf("Last backup:       %s (%s)\n", st.Last.Name, humanize.Time(st.Last.CreatedAt))
		}
		if st.NextDue.IsZero() {
			fmt.Println("Next backup:       due now")
		} else {
			fmt.Printf("Next backup:       %s (%s)\n", st.NextDue.Local().Format("2006-01-02 15:04"), humanize.Time(st.NextDue))
		}
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run startup, periodic and exit backup checks until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newBackupApp(ctx, "Watch")
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Watching; press Ctrl-C to stop.")
		results := a.Watch(ctx)

		failed := 0
		for _, r := range results {
			switch r.Outcome {
			case backup.OutcomeCreated:
				fmt.Printf("%-8s created %s\n", r.Trigger, r.Artifact.Name)
			case backup.OutcomeFailed:
				failed++
				fmt.Printf("%-8s failed: %v\n", r.Trigger, r.Err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d backup check(s) failed", failed)
		}
		return nil
	},
}

// catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List plants, device types and failure classifications",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Plants:")
		for _, code := range bodega.PlantCodes() {
			fmt.Printf("  %s  %s\n", code, bodega.Plants[code])
		}
		fmt.Println("Device types:")
		for _, t := range bodega.DeviceTypes {
			fmt.Printf("  %s\n", t)
		}
		fmt.Println("Failure types:")
		for _, f := range bodega.FailureTypes {
			fmt.Printf("  %s\n", f)
		}
		fmt.Println("Search scopes:")
		for _, s := range bodega.Scopes() {
			fmt.Printf("  %s\n", s)
		}
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("encryption", "none", "Encryption for mirrored backups: none or age")

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)

	// device subcommands
	deviceCmd.AddCommand(deviceAddCmd)
	deviceCmd.AddCommand(deviceEditCmd)
	deviceCmd.AddCommand(deviceShowCmd)
	deviceFlags(deviceAddCmd)
	deviceFlags(deviceEditCmd)
	for _, name := range []string{"plant", "serial", "type", "model"} {
		deviceAddCmd.MarkFlagRequired(name)
	}

	// backup subcommands
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupCleanupCmd)
	backupCmd.AddCommand(backupStatusCmd)
	backupRestoreCmd.Flags().String("remote", "", "Restore this artifact from a vault")
	backupRestoreCmd.Flags().String("vault", "", "Vault to restore from (default: the first configured)")
	backupRestoreCmd.Flags().BoolP("yes", "y", false, "Answer yes to the confirmation prompt")
	backupListCmd.Flags().Bool("remote", false, "List the artifacts held by a vault")
	backupListCmd.Flags().String("vault", "", "Vault to list (default: the first configured)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().String("by", "all", "Scope: all, serial, model, type, plant or date")
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().String("by", "", "Delete every device found by this search scope")
	deleteCmd.Flags().BoolP("yes", "y", false, "Answer yes to every confirmation (never lifts a block)")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of changes to show")
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("by", "all", "Scope: all, serial, model, type, plant or date")
	exportCmd.Flags().String("out", "bodega.csv", "CSV file to write")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(catalogCmd)
}
