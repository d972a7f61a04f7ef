// Package tail follows a flow file that another process is still writing.
//
// A Follower is the growing reader behind a streaming conversion: Read returns
// whatever the file holds so far and io.EOF at its current end, and Wait
// blocks until more data may have arrived. Wake-ups come from fsnotify, with a
// bounded poll interval as a fallback for filesystems that do not deliver
// events. Log rotation is detected either way.
package tail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrFileRotated is returned by Wait when the followed file was rotated away
// and the follower was not asked to follow rotations.
var ErrFileRotated = errors.New("file rotated")

const (
	defaultPollInterval  = 250 * time.Millisecond
	defaultRotateTimeout = 10 * time.Second
	reopenInterval       = 100 * time.Millisecond
)

// Options configures a Follower.
type Options struct {
	PollInterval  time.Duration // Upper bound on a single Wait without events
	FollowRotate  bool          // Reopen the path after rotation instead of failing
	FromEnd       bool          // Skip the content present at open time
	RotateTimeout time.Duration // How long to wait for a rotated file to reappear
	Logger        *slog.Logger
}

// Follower reads a growing file.
type Follower struct {
	path    string
	opts    Options
	logger  *slog.Logger
	file    *os.File
	old     *os.File // rotated file still being drained
	partial bool     // drop input up to the next newline
	watcher *fsnotify.Watcher
}

// Open opens path for following.
func Open(path string, opts Options) (*Follower, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.RotateTimeout <= 0 {
		opts.RotateTimeout = defaultRotateTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	f := &Follower{path: path, opts: opts, logger: logger, file: file}

	if opts.FromEnd {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to seek to end: %w", err)
		}
		// The writer may be in the middle of a line.
		if end > 0 {
			last := make([]byte, 1)
			if _, err := file.ReadAt(last, end-1); err == nil && last[0] != '\n' {
				f.partial = true
			}
		}
	}

	// Polling alone still works when no watcher can be set up.
	if err := f.setupWatcher(); err != nil {
		logger.Warn("file watcher unavailable, polling only", "path", path, "error", err)
	}

	return f, nil
}

// setupWatcher initializes the fsnotify watcher on the followed path.
func (f *Follower) setupWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(f.path); err != nil {
		watcher.Close()
		return err
	}
	f.watcher = watcher
	return nil
}

// Path returns the followed path.
func (f *Follower) Path() string {
	return f.path
}

// Read implements io.Reader. After a rotation the old file is drained
// before reading from the new one.
func (f *Follower) Read(p []byte) (int, error) {
	if f.old != nil {
		n, err := f.read(f.old, p)
		if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
			return n, err
		}
		f.old.Close()
		f.old = nil
		// the new file starts on a line boundary
		f.partial = false
	}
	return f.read(f.file, p)
}

// read reads from file. While a line cut by the seek to the end is pending,
// its remainder is discarded.
func (f *Follower) read(file *os.File, p []byte) (int, error) {
	for f.partial && len(p) > 0 {
		n, err := file.Read(p)
		if i := bytes.IndexByte(p[:n], '\n'); i >= 0 {
			f.partial = false
			if rest := copy(p, p[i+1:n]); rest > 0 || err != nil {
				return rest, err
			}
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return file.Read(p)
}

// Wait blocks until the file may have grown, the poll interval elapses or
// ctx is done.
func (f *Follower) Wait(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errc   <-chan error
	)
	if f.watcher != nil {
		events = f.watcher.Events
		errc = f.watcher.Errors
	}

	timer := time.NewTimer(f.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				return nil
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				return f.handleRotation(ctx)
			}
			// chmod and friends carry no data

		case err, ok := <-errc:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			return fmt.Errorf("watcher error: %w", err)

		case <-timer.C:
			return f.checkFile(ctx)
		}
	}
}

// checkFile catches rotation and truncation that produced no event.
func (f *Follower) checkFile(ctx context.Context) error {
	current, err := f.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	onDisk, err := os.Stat(f.path)
	if err != nil || !os.SameFile(current, onDisk) {
		return f.handleRotation(ctx)
	}

	pos, err := f.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("failed to read offset: %w", err)
	}
	if onDisk.Size() < pos {
		f.logger.Info("file truncated, reading from start", "path", f.path)
		if _, err := f.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to start: %w", err)
		}
		f.partial = false
	}
	return nil
}

// handleRotation switches to the file that replaced the followed one.
func (f *Follower) handleRotation(ctx context.Context) error {
	if !f.opts.FollowRotate {
		return fmt.Errorf("%s: %w", f.path, ErrFileRotated)
	}

	timeout := time.After(f.opts.RotateTimeout)
	ticker := time.NewTicker(reopenInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for rotated file to reappear")
		case <-ticker.C:
			next, err := os.Open(f.path)
			if err != nil {
				continue
			}

			if f.old != nil {
				f.old.Close()
			}
			f.old = f.file
			f.file = next

			if f.watcher != nil {
				// the old watch went away with the old inode
				_ = f.watcher.Remove(f.path)
				if err := f.watcher.Add(f.path); err != nil {
					return fmt.Errorf("failed to watch rotated file: %w", err)
				}
			}

			f.logger.Info("file rotated, following new file", "path", f.path)
			return nil
		}
	}
}

// Close releases the file handles and the watcher.
func (f *Follower) Close() error {
	var errs []error
	if f.old != nil {
		errs = append(errs, f.old.Close())
		f.old = nil
	}
	if f.file != nil {
		errs = append(errs, f.file.Close())
		f.file = nil
	}
	if f.watcher != nil {
		errs = append(errs, f.watcher.Close())
		f.watcher = nil
	}
	return errors.Join(errs...)
}
