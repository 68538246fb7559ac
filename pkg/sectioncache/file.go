// Package sectioncache provides [livequery.SectionCache] implementations.
//
// [File] stores one LQSC file per (name, fingerprint) under a directory:
//
//	<dir>/<name>/<fingerprint>.lqc
//
// Writes replace files atomically and are serialized across processes by an
// advisory lock on <dir>/.lock. Readers never take the lock; a reader sees
// either the previous or the next complete file.
//
// [Memory] keeps layouts in process and is meant for tests and short-lived
// controllers.
package sectioncache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/livequery/pkg/livequery"
)

const (
	fileExt  = ".lqc"
	lockName = ".lock"
)

// File is a directory-backed section cache. The zero value is not usable;
// construct with [NewFile].
type File struct {
	dir string
}

// NewFile returns a cache rooted at dir. The directory is created lazily on
// first write.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("sectioncache: dir is empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("sectioncache: %w", err)
	}

	return &File{dir: abs}, nil
}

// Dir returns the cache root.
func (f *File) Dir() string { return f.dir }

func (f *File) path(name string, fp livequery.Fingerprint) (string, error) {
	err := validateName(name)
	if err != nil {
		return "", err
	}

	err = validateFingerprint(string(fp))
	if err != nil {
		return "", err
	}

	return filepath.Join(f.dir, name, string(fp)+fileExt), nil
}

// Read implements [livequery.SectionCache]. A missing file is a miss; a file
// that fails validation returns an error wrapping [ErrCorrupt].
func (f *File) Read(name string, fp livequery.Fingerprint) (livequery.Layout, bool, error) {
	path, err := f.path(name, fp)
	if err != nil {
		return livequery.Layout{}, false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return livequery.Layout{}, false, nil
	}

	if err != nil {
		return livequery.Layout{}, false, fmt.Errorf("sectioncache: read %s: %w", path, err)
	}

	layout, err := decodeLayout(data)
	if err != nil {
		return livequery.Layout{}, false, fmt.Errorf("%s: %w", path, err)
	}

	return layout, true, nil
}

// Write implements [livequery.SectionCache].
func (f *File) Write(name string, fp livequery.Fingerprint, layout livequery.Layout) error {
	path, err := f.path(name, fp)
	if err != nil {
		return err
	}

	return f.locked(func() error {
		err := os.MkdirAll(filepath.Dir(path), 0o750)
		if err != nil {
			return fmt.Errorf("sectioncache: mkdir: %w", err)
		}

		err = atomic.WriteFile(path, bytes.NewReader(encodeLayout(layout)))
		if err != nil {
			return fmt.Errorf("sectioncache: write %s: %w", path, err)
		}

		return nil
	})
}

// Delete implements [livequery.SectionCache]. An empty name removes every
// entry; directories that are not valid cache names are left alone.
func (f *File) Delete(name string) error {
	if name != "" {
		err := validateName(name)
		if err != nil {
			return err
		}
	}

	return f.locked(func() error {
		if name != "" {
			return removeAll(filepath.Join(f.dir, name))
		}

		entries, err := os.ReadDir(f.dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("sectioncache: %w", err)
		}

		var errs []error

		for _, e := range entries {
			if !e.IsDir() || validateName(e.Name()) != nil {
				continue
			}

			errs = append(errs, removeAll(filepath.Join(f.dir, e.Name())))
		}

		return errors.Join(errs...)
	})
}

// Names lists the cache names with at least one stored entry, sorted.
func (f *File) Names() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("sectioncache: %w", err)
	}

	var names []string

	for _, e := range entries {
		if !e.IsDir() || validateName(e.Name()) != nil {
			continue
		}

		files, err := os.ReadDir(filepath.Join(f.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("sectioncache: %w", err)
		}

		for _, file := range files {
			if strings.HasSuffix(file.Name(), fileExt) {
				names = append(names, e.Name())

				break
			}
		}
	}

	// os.ReadDir returns entries sorted by filename.
	return names, nil
}

func removeAll(path string) error {
	err := os.RemoveAll(path)
	if err != nil {
		return fmt.Errorf("sectioncache: remove %s: %w", path, err)
	}

	return nil
}

// locked runs fn while holding the exclusive directory lock.
func (f *File) locked(fn func() error) error {
	err := os.MkdirAll(f.dir, 0o750)
	if err != nil {
		return fmt.Errorf("sectioncache: mkdir: %w", err)
	}

	lock, err := os.OpenFile(filepath.Join(f.dir, lockName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("sectioncache: open lock file: %w", err)
	}

	defer func() { _ = lock.Close() }()

	for {
		err = unix.Flock(int(lock.Fd()), unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}

	if err != nil {
		return fmt.Errorf("sectioncache: flock: %w", err)
	}

	defer func() { _ = unix.Flock(int(lock.Fd()), unix.LOCK_UN) }()

	return fn()
}

var _ livequery.SectionCache = (*File)(nil)
