// Package backup creates, rotates and restores timestamped copies of the
// inventory database file.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"bodega-go/internal/bodega"
)

// SizeSkewTolerance is the largest source/copy size difference that passes
// without a warning.
const SizeSkewTolerance = 1024

const (
	opCreate  = "create backup"
	opPrune   = "prune backups"
	opRestore = "restore backup"
	opCheck   = "backup check"
	opList    = "list backups"
)

// Config locates the file to protect and where its copies live.
type Config struct {
	Policy     Policy
	SourcePath string
	Dir        string
	Naming     Naming
}

// Scheduler decides when to back up the source file and performs the
// create, verify and prune sequence. Operations are serialised.
type Scheduler struct {
	cfg     Config
	fs      bodega.Filesystem
	clock   bodega.Clock
	logger  bodega.Logger
	mirrors []*Mirror

	mu sync.Mutex

	// newTicker is replaced in tests.
	newTicker func(d time.Duration) (<-chan time.Time, func())
}

// NewScheduler creates a Scheduler. Mirrors receive every artifact created by Check.
func NewScheduler(cfg Config, fsys bodega.Filesystem, clock bodega.Clock, logger bodega.Logger, mirrors ...*Mirror) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		fs:      fsys,
		clock:   clock,
		logger:  logger,
		mirrors: mirrors,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Policy returns the policy the scheduler was built with.
func (s *Scheduler) Policy() Policy {
	return s.cfg.Policy
}

// Mirrors returns the configured remote mirrors.
func (s *Scheduler) Mirrors() []*Mirror {
	return s.mirrors
}

// CreateBackup copies the source file into the backup directory.
func (s *Scheduler) CreateBackup() (a Artifact, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.boundary(opCreate, &err)

	return s.createBackup()
}

func (s *Scheduler) createBackup() (Artifact, error) {
	src := s.cfg.SourcePath
	srcInfo, err := s.fs.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, failf(opCreate, KindPrecondition, src, "source file does not exist")
		}
		return Artifact{}, &Failure{Op: opCreate, Kind: KindUnexpected, Path: src, Err: err}
	}
	if !srcInfo.Mode().IsRegular() {
		return Artifact{}, failf(opCreate, KindPrecondition, src, "source is not a regular file")
	}
	if srcInfo.Size() == 0 {
		return Artifact{}, failf(opCreate, KindPrecondition, src, "source file is empty")
	}

	dir := s.cfg.Dir
	if err := s.fs.MkdirAll(dir); err != nil {
		return Artifact{}, &Failure{Op: opCreate, Kind: KindPermission, Path: dir, Err: err}
	}
	if err := s.fs.ProbeWritable(dir); err != nil {
		return Artifact{}, &Failure{Op: opCreate, Kind: KindPermission, Path: dir, Err: err}
	}

	if free, err := s.fs.FreeSpace(dir); err != nil {
		s.logger.Warn("could not read free space, continuing", "dir", dir, "error", err)
	} else if free < uint64(srcInfo.Size()) {
		return Artifact{}, failf(opCreate, KindPrecondition, dir,
			"insufficient free space: need %d bytes, %d available", srcInfo.Size(), free)
	}

	now := s.clock.Now()
	name := s.cfg.Naming.Name(now)
	dst := filepath.Join(dir, name)

	if _, err := s.fs.CopyFile(src, dst, false); err != nil {
		switch {
		case errors.Is(err, fs.ErrExist):
			return Artifact{}, failf(opCreate, KindPrecondition, dst, "an artifact with this name already exists")
		case errors.Is(err, fs.ErrPermission):
			return Artifact{}, &Failure{Op: opCreate, Kind: KindPermission, Path: dst, Err: err}
		default:
			return Artifact{}, &Failure{Op: opCreate, Kind: KindUnexpected, Path: dst, Err: err}
		}
	}

	info, err := s.fs.Stat(dst)
	if err != nil {
		return Artifact{}, &Failure{Op: opCreate, Kind: KindUnexpected, Path: dst, Err: err}
	}
	if info.Size() == 0 {
		if rmErr := s.fs.Remove(dst); rmErr != nil {
			s.logger.Error("could not remove empty artifact", "path", dst, "error", rmErr)
		}
		return Artifact{}, failf(opCreate, KindIntegrity, dst, "backup copy is empty and was discarded")
	}

	if skew := info.Size() - srcInfo.Size(); skew > SizeSkewTolerance || skew < -SizeSkewTolerance {
		s.logger.Warn("backup size differs from source",
			"path", dst, "source_bytes", srcInfo.Size(), "backup_bytes", info.Size())
	}

	if err := s.fs.SetModTime(dst, now); err != nil {
		s.logger.Warn("could not stamp artifact time", "path", dst, "error", err)
	}

	s.logger.Info("backup created", "path", dst, "bytes", info.Size())
	return Artifact{Name: name, Path: dst, CreatedAt: now, SizeBytes: info.Size()}, nil
}

// Prune deletes the oldest artifacts beyond the retention count, then does
// the same for pre-restore safety copies. It returns how many files were
// deleted. A file that cannot be deleted is logged and skipped.
func (s *Scheduler) Prune() (deleted int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.boundary(opPrune, &err)

	return s.prune()
}

func (s *Scheduler) prune() (int, error) {
	n, err := s.pruneSet(s.cfg.Naming)
	if err != nil {
		return n, err
	}
	m, err := s.pruneSet(s.cfg.Naming.PreRestore())
	return n + m, err
}

func (s *Scheduler) pruneSet(naming Naming) (int, error) {
	artifacts, err := ListArtifacts(s.fs, s.cfg.Dir, naming)
	if err != nil {
		return 0, &Failure{Op: opPrune, Kind: KindUnexpected, Path: s.cfg.Dir, Err: err}
	}

	excess := len(artifacts) - s.cfg.Policy.MaxRetained
	if excess <= 0 {
		return 0, nil
	}

	deleted := 0
	for _, a := range artifacts[:excess] {
		if err := s.fs.Remove(a.Path); err != nil {
			s.logger.Warn("could not delete old backup, skipping", "path", a.Path, "error", err)
			continue
		}
		deleted++
		s.logger.Debug("old backup deleted", "path", a.Path)
	}

	if deleted > 0 {
		s.logger.Info("old backups pruned", "prefix", naming.Prefix, "deleted", deleted, "retained", len(artifacts)-deleted)
	}
	return deleted, nil
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Target     string
	SafetyCopy string // empty when the target did not exist
	Bytes      int64
}

// Restore copies backupPath over targetPath. An existing target is first
// copied to a pre-restore safety copy in the backup directory; if that copy
// fails the target is left untouched.
func (s *Scheduler) Restore(backupPath, targetPath string) (res RestoreResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.boundary(opRestore, &err)

	return s.restore(backupPath, targetPath)
}

func (s *Scheduler) restore(backupPath, targetPath string) (RestoreResult, error) {
	res := RestoreResult{Target: targetPath}

	info, err := s.fs.Stat(backupPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, failf(opRestore, KindPrecondition, backupPath, "backup file does not exist")
		}
		return res, &Failure{Op: opRestore, Kind: KindUnexpected, Path: backupPath, Err: err}
	}
	if !info.Mode().IsRegular() {
		return res, failf(opRestore, KindPrecondition, backupPath, "backup is not a regular file")
	}
	if info.Size() == 0 {
		return res, failf(opRestore, KindPrecondition, backupPath, "backup file is empty")
	}

	now := s.clock.Now()
	if _, err := s.fs.Stat(targetPath); err == nil {
		if err := s.fs.MkdirAll(s.cfg.Dir); err != nil {
			return res, &Failure{Op: opRestore, Kind: KindPermission, Path: s.cfg.Dir, Err: err}
		}
		safety := filepath.Join(s.cfg.Dir, s.cfg.Naming.PreRestore().Name(now))
		if _, err := s.fs.CopyFile(targetPath, safety, false); err != nil {
			kind := KindUnexpected
			if errors.Is(err, fs.ErrPermission) {
				kind = KindPermission
			} else if errors.Is(err, fs.ErrExist) {
				kind = KindPrecondition
			}
			return res, &Failure{Op: opRestore, Kind: kind, Path: safety, Err: fmt.Errorf("creating safety copy: %w", err)}
		}
		if err := s.fs.SetModTime(safety, now); err != nil {
			s.logger.Warn("could not stamp safety copy time", "path", safety, "error", err)
		}
		res.SafetyCopy = safety
		s.logger.Info("pre-restore safety copy created", "path", safety)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return res, &Failure{Op: opRestore, Kind: KindUnexpected, Path: targetPath, Err: err}
	}

	written, err := s.fs.CopyFile(backupPath, targetPath, true)
	if err != nil {
		kind := KindUnexpected
		if errors.Is(err, fs.ErrPermission) {
			kind = KindPermission
		}
		return res, &Failure{Op: opRestore, Kind: kind, Path: targetPath, Err: err}
	}

	restored, err := s.fs.Stat(targetPath)
	if err != nil {
		return res, &Failure{Op: opRestore, Kind: KindUnexpected, Path: targetPath, Err: err}
	}
	if restored.Size() == 0 {
		return res, failf(opRestore, KindIntegrity, targetPath, "restored file is empty")
	}
	res.Bytes = written

	if _, err := s.pruneSet(s.cfg.Naming.PreRestore()); err != nil {
		s.logger.Warn("could not prune safety copies", "error", err)
	}

	s.logger.Info("backup restored", "from", backupPath, "to", targetPath, "bytes", written)
	return res, nil
}

// Artifacts lists the managed backups, oldest first.
func (s *Scheduler) Artifacts() (as []Artifact, err error) {
	defer s.boundary(opList, &err)
	return ListArtifacts(s.fs, s.cfg.Dir, s.cfg.Naming)
}

// SafetyCopies lists the pre-restore safety copies, oldest first.
func (s *Scheduler) SafetyCopies() (as []Artifact, err error) {
	defer s.boundary(opList, &err)
	return ListArtifacts(s.fs, s.cfg.Dir, s.cfg.Naming.PreRestore())
}

// LastBackup returns the newest managed artifact. ok is false when none exist.
func (s *Scheduler) LastBackup() (a Artifact, ok bool, err error) {
	artifacts, err := s.Artifacts()
	if err != nil || len(artifacts) == 0 {
		return Artifact{}, false, err
	}
	return artifacts[len(artifacts)-1], true, nil
}

// Outcome is what a Check did.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result reports one Check.
type Result struct {
	Trigger  Trigger
	Outcome  Outcome
	Reason   string    // why the check skipped
	Artifact *Artifact // set when created
	Pruned   int
	Err      error // set when failed
}

// Check evaluates one trigger and, when a backup is due, creates it, prunes
// old artifacts and pushes the new one to every mirror. Pruning only follows
// a successful create. Mirror failures are logged and do not change the outcome.
func (s *Scheduler) Check(ctx context.Context, trigger Trigger) (res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res = Result{Trigger: trigger}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = &Failure{Op: opCheck, Kind: KindUnexpected, Err: fmt.Errorf("panic: %v", r)}
			s.logger.Error("backup check panicked", "trigger", trigger.String(), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if reason, skip := s.disabled(trigger); skip {
		res.Outcome = OutcomeSkipped
		res.Reason = reason
		s.logger.Debug("backup check skipped", "trigger", trigger.String(), "reason", reason)
		return res
	}

	var last time.Time
	artifacts, err := ListArtifacts(s.fs, s.cfg.Dir, s.cfg.Naming)
	if err != nil {
		return s.failed(res, &Failure{Op: opCheck, Kind: KindUnexpected, Path: s.cfg.Dir, Err: err})
	}
	if len(artifacts) > 0 {
		last = artifacts[len(artifacts)-1].CreatedAt
	}

	now := s.clock.Now()
	if !ShouldBackup(last, now, s.cfg.Policy.Interval, trigger) {
		res.Outcome = OutcomeSkipped
		res.Reason = fmt.Sprintf("last backup at %s is recent", last.Format(time.RFC3339))
		s.logger.Debug("backup not due", "trigger", trigger.String(), "last", last)
		return res
	}

	if trigger.Automatic() {
		if info, err := s.fs.Stat(s.cfg.SourcePath); err == nil && info.Size() < s.cfg.Policy.MinSourceSizeBytes {
			res.Outcome = OutcomeSkipped
			res.Reason = fmt.Sprintf("source is %d bytes, below the %d byte minimum", info.Size(), s.cfg.Policy.MinSourceSizeBytes)
			s.logger.Info("backup skipped", "trigger", trigger.String(), "reason", res.Reason)
			return res
		}
	}

	artifact, err := s.createBackup()
	if err != nil {
		return s.failed(res, err)
	}
	res.Outcome = OutcomeCreated
	res.Artifact = &artifact

	pruned, err := s.prune()
	if err != nil {
		s.logger.Warn("pruning after backup failed", "error", err)
	}
	res.Pruned = pruned

	for _, m := range s.mirrors {
		if ctx.Err() != nil && trigger != TriggerExit {
			break
		}
		if err := m.Push(s.fs, artifact); err != nil {
			s.logger.Warn("mirroring backup failed", "mirror", m.Name(), "artifact", artifact.Name, "error", err)
		}
	}

	s.logger.Info("backup check complete", "trigger", trigger.String(), "artifact", artifact.Path, "pruned", pruned)
	return res
}

func (s *Scheduler) disabled(trigger Trigger) (string, bool) {
	p := s.cfg.Policy
	switch {
	case trigger == TriggerManual:
		return "", false
	case !p.Enabled:
		return "automatic backups are disabled", true
	case trigger == TriggerStartup && !p.OnStart:
		return "startup backups are disabled", true
	case trigger == TriggerExit && !p.OnExit:
		return "exit backups are disabled", true
	}
	return "", false
}

func (s *Scheduler) failed(res Result, err error) Result {
	var f *Failure
	if !errors.As(err, &f) {
		f = &Failure{Op: opCheck, Kind: KindUnexpected, Err: err}
	}
	res.Outcome = OutcomeFailed
	res.Err = f
	s.logger.Error("backup failed", "trigger", res.Trigger.String(), "op", f.Op, "kind", string(f.Kind), "path", f.Path, "error", f.Err)
	return res
}

// Watch runs a startup check, a periodic check every CheckInterval and an
// exit check once ctx is cancelled. It returns after the exit check.
func (s *Scheduler) Watch(ctx context.Context) []Result {
	var results []Result
	results = append(results, s.Check(ctx, TriggerStartup))

	tick, stop := s.newTicker(s.cfg.Policy.CheckInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			results = append(results, s.Check(context.WithoutCancel(ctx), TriggerExit))
			return results
		case <-tick:
			results = append(results, s.Check(ctx, TriggerPeriodic))
		}
	}
}

// Status summarises the backup directory.
type Status struct {
	Enabled     bool
	Last        *Artifact
	Count       int
	TotalBytes  int64
	SafetyCount int
	NextDue     time.Time // zero when a backup is due now
}

// Status reports the newest artifact, counts and when the next periodic backup is due.
func (s *Scheduler) Status() (st Status, err error) {
	defer s.boundary(opList, &err)

	st.Enabled = s.cfg.Policy.Enabled
	artifacts, err := ListArtifacts(s.fs, s.cfg.Dir, s.cfg.Naming)
	if err != nil {
		return st, err
	}
	st.Count = len(artifacts)
	for _, a := range artifacts {
		st.TotalBytes += a.SizeBytes
	}
	if len(artifacts) > 0 {
		last := artifacts[len(artifacts)-1]
		st.Last = &last
		if due := last.CreatedAt.Add(s.cfg.Policy.Interval); due.After(s.clock.Now()) {
			st.NextDue = due
		}
	}

	safety, err := ListArtifacts(s.fs, s.cfg.Dir, s.cfg.Naming.PreRestore())
	if err != nil {
		return st, err
	}
	st.SafetyCount = len(safety)
	return st, nil
}

// boundary converts panics and unclassified errors into a Failure and logs it.
func (s *Scheduler) boundary(op string, errp *error) {
	if r := recover(); r != nil {
		*errp = &Failure{Op: op, Kind: KindUnexpected, Err: fmt.Errorf("panic: %v", r)}
		s.logger.Error("backup operation panicked", "op", op, "panic", r, "stack", string(debug.Stack()))
		return
	}
	if *errp == nil {
		return
	}

	var f *Failure
	if !errors.As(*errp, &f) {
		f = &Failure{Op: op, Kind: KindUnexpected, Err: *errp}
		*errp = f
	}
	s.logger.Error("backup operation failed", "op", f.Op, "kind", string(f.Kind), "path", f.Path, "error", f.Err)
}
