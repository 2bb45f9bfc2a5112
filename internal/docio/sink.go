package docio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kevinwang15/yamldedup"
)

// BackupTimeFormat is the UTC timestamp embedded in backup file names.
const BackupTimeFormat = "20060102T150405Z"

// SinkOptions configures a Sink.
type SinkOptions struct {
	// DryRun reports what would be written without touching the filesystem.
	DryRun bool
	// Backup copies the previous content of a file to
	// <name>.<timestamp>.bak before overwriting it.
	Backup bool
	// Diff receives a unified diff of every change in dry-run mode. Nil
	// disables diffs.
	Diff io.Writer
	// Color colorizes the diff.
	Color bool
	// Now is the clock used for backup names; time.Now when nil.
	Now func() time.Time
}

// Output is one document to persist.
type Output struct {
	Name string
	Data []byte
}

// Result describes what a Sink did with one Output.
type Result struct {
	Name       string
	Changed    bool   // content differed from what was on disk
	Written    bool   // file was (re)written
	BackupPath string // set when a backup was created
}

// BatchError reports a write failure in WriteAll. Files listed in
// Committed were written before the failure and are left in place.
type BatchError struct {
	Failed    string
	Committed []string
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("yamldedup: writing %s failed (%d file(s) already committed): %v", e.Failed, len(e.Committed), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Sink writes documents back to disk.
type Sink struct {
	opts SinkOptions
	log  *zap.Logger
}

// NewSink returns a Sink with the given options. A nil logger disables logging.
func NewSink(opts SinkOptions, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sink{opts: opts, log: log}
}

// Write persists one output. Content equal to what is already on disk is
// left alone and not backed up.
func (s *Sink) Write(o Output) (Result, error) {
	res := Result{Name: o.Name}
	log := s.log.With(zap.String("file", o.Name))

	old, mode, exists, err := current(o.Name)
	if err != nil {
		return res, writeErr(o.Name, err)
	}
	if exists && bytes.Equal(old, o.Data) {
		log.Info("file unchanged")
		return res, nil
	}
	res.Changed = true

	if s.opts.DryRun {
		log.Info("dry-run: changes would be written")
		if s.opts.Backup && exists {
			log.Info("dry-run: backup would be created", zap.String("backup", s.backupPath(o.Name)))
		}
		if s.opts.Diff != nil {
			if err := writeDiff(s.opts.Diff, o.Name, old, o.Data, s.opts.Color); err != nil {
				return res, fmt.Errorf("yamldedup: failed to write diff for %s: %w", o.Name, err)
			}
		}
		return res, nil
	}

	if s.opts.Backup && exists {
		bp := s.backupPath(o.Name)
		if err := os.WriteFile(bp, old, mode); err != nil {
			return res, writeErr(o.Name, fmt.Errorf("backup: %w", err))
		}
		res.BackupPath = bp
		log.Info("backup created", zap.String("backup", bp))
	}

	if err := replaceFile(o.Name, o.Data, mode); err != nil {
		return res, writeErr(o.Name, err)
	}
	res.Written = true
	log.Info("file saved")
	return res, nil
}

// WriteAll writes outputs in order and stops at the first failure,
// returning a *BatchError.
func (s *Sink) WriteAll(outs []Output) ([]Result, error) {
	results := make([]Result, 0, len(outs))
	var committed []string
	for _, o := range outs {
		res, err := s.Write(o)
		if err != nil {
			s.log.Error("write failed", zap.String("file", o.Name), zap.Strings("committed", committed), zap.Error(err))
			return results, &BatchError{Failed: o.Name, Committed: committed, Err: err}
		}
		results = append(results, res)
		if res.Written {
			committed = append(committed, o.Name)
		}
	}
	return results, nil
}

func (s *Sink) backupPath(name string) string {
	return name + "." + s.opts.Now().UTC().Format(BackupTimeFormat) + ".bak"
}

// current returns the existing content and mode of name.
func current(name string) ([]byte, fs.FileMode, bool, error) {
	fi, err := os.Stat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0o644, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	if fi.IsDir() {
		return nil, 0, false, fmt.Errorf("%s is a directory", name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, 0, false, err
	}
	return data, fi.Mode().Perm(), true, nil
}

// replaceFile writes data to a temporary file next to name and renames it
// into place.
func replaceFile(name string, data []byte, mode fs.FileMode) error {
	dir, base := filepath.Split(name)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, name)
}

func writeErr(name string, err error) error {
	return yamldedup.WithName(fmt.Errorf("%w: %v", yamldedup.ErrWrite, err), name)
}
