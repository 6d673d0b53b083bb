package tle

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyArchive is returned by Latest when nothing has been saved.
var ErrEmptyArchive = errors.New("no archived TLE data")

const (
	archivePrefix = "elements_"
	archiveSuffix = ".tle"
)

// Archive keeps the most recent fetched element files on disk so a restart
// can proceed when the remote source is unreachable.
type Archive struct {
	dir  string
	keep int
}

// NewArchive creates an Archive in dir that retains at most keep files.
func NewArchive(dir string, keep int) *Archive {
	if keep <= 0 {
		keep = 5
	}
	return &Archive{dir: dir, keep: keep}
}

// Save writes data under a name derived from ts and prunes older files.
func (a *Archive) Save(data []byte, ts time.Time) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}

	name := fmt.Sprintf("%s%d%s", archivePrefix, ts.Unix(), archiveSuffix)
	if err := os.WriteFile(filepath.Join(a.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing archive file: %w", err)
	}
	return a.prune()
}

// Latest returns the newest archived file and the time it was saved under.
func (a *Archive) Latest() ([]byte, time.Time, error) {
	files, err := a.list()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, ErrEmptyArchive
	}

	newest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(a.dir, newest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading archive file: %w", err)
	}
	return data, newest.ts, nil
}

// LoadLatest parses the newest archived file into a Dataset stamped with
// its save time.
func (a *Archive) LoadLatest(logger *slog.Logger) (*Dataset, error) {
	data, ts, err := a.Latest()
	if err != nil {
		return nil, err
	}
	sets, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	return NewDataset("archive://"+a.dir, ts, sets), nil
}

type archiveFile struct {
	name string
	ts   time.Time
}

// list returns archive files sorted oldest first.
func (a *Archive) list() ([]archiveFile, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing archive dir: %w", err)
	}

	var files []archiveFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, archiveFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})
	return files, nil
}

func (a *Archive) prune() error {
	files, err := a.list()
	if err != nil {
		return err
	}
	if len(files) <= a.keep {
		return nil
	}
	for _, f := range files[:len(files)-a.keep] {
		if err := os.Remove(filepath.Join(a.dir, f.name)); err != nil {
			return fmt.Errorf("pruning archive file %s: %w", f.name, err)
		}
	}
	return nil
}
