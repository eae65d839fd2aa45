package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/markuskont/go-dispatch"
	"github.com/markuskont/go-mini-siem/pkg/event"
	"github.com/markuskont/go-mini-siem/pkg/metrics"
	"github.com/ryanuber/go-glob"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrNoInput is returned when not a single input file could be read
var ErrNoInput = errors.New("no readable input files")

// ErrReadFile ties a read or decompression failure to the offending file
type ErrReadFile struct {
	Path string
	Err  error
}

func (e ErrReadFile) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Err)
}

func (e ErrReadFile) Unwrap() error { return e.Err }

// Config parametrizes a Loader
type Config struct {
	// defaults to the OS filesystem
	Fs afero.Fs
	// file name globs, every file is taken if empty
	Include []string
	// file name globs, matched after Include
	Exclude []string
	// descend into subdirectories
	Recursive bool
	// parallel file decoders, sequential if below 2
	Workers int

	Logger  logrus.FieldLogger
	Metrics *metrics.Run
}

// Loader turns a folder of log exports into raw records
type Loader struct {
	fs        afero.Fs
	include   []string
	exclude   []string
	recursive bool
	workers   int
	log       logrus.FieldLogger
	metrics   *metrics.Run
}

// NewLoader instantiates a Loader
func NewLoader(c Config) *Loader {
	l := &Loader{
		fs:        c.Fs,
		include:   c.Include,
		exclude:   c.Exclude,
		recursive: c.Recursive,
		workers:   c.Workers,
		log:       c.Logger,
		metrics:   c.Metrics,
	}
	if l.fs == nil {
		l.fs = afero.NewOsFs()
	}
	if l.log == nil {
		l.log = logrus.StandardLogger()
	}
	return l
}

// Files lists input files under dir, sorted by path
func (l Loader) Files(dir string) ([]string, error) {
	out := make([]string, 0)
	err := afero.Walk(l.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && !l.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if l.accept(filepath.Base(path)) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (l Loader) accept(name string) bool {
	if len(l.include) > 0 && !matchAny(l.include, name) {
		return false
	}
	return !matchAny(l.exclude, name)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if glob.Glob(p, name) {
			return true
		}
	}
	return false
}

// LoadDir reads every accepted file under dir
// Files that cannot be read are logged and skipped, ErrNoInput is returned if none could
func (l Loader) LoadDir(dir string) ([]event.RawRecord, error) {
	files, err := l.Files(dir)
	if err != nil {
		return nil, err
	}
	return l.LoadFiles(files)
}

// LoadFiles reads files and concatenates records in file order
func (l Loader) LoadFiles(files []string) ([]event.RawRecord, error) {
	batches := make([][]event.RawRecord, len(files))
	errs := make([]error, len(files))

	load := func(i int) {
		batches[i], errs[i] = l.LoadFile(files[i])
	}
	if l.workers < 2 || len(files) < 2 {
		for i := range files {
			load(i)
		}
	} else if err := dispatch.Run(dispatch.Config{
		Async:   false,
		Workers: l.workers,
		FeederFunc: func(tasks chan<- dispatch.Task, stop <-chan struct{}) {
			var wg sync.WaitGroup
		loop:
			for i := range files {
				i := i
				wg.Add(1)
				select {
				case tasks <- func(id, count int, ctx context.Context) error {
					defer wg.Done()
					load(i)
					return nil
				}:
				case <-stop:
					wg.Done()
					break loop
				}
			}
			wg.Wait()
		},
		ErrFunc: func(err error) bool {
			l.log.Error(err)
			return true
		},
	}); err != nil {
		return nil, err
	}

	var readable int
	out := make([]event.RawRecord, 0)
	for i, path := range files {
		if errs[i] != nil {
			l.log.WithField("path", path).Warn(errs[i])
			l.count("error", 0)
			continue
		}
		readable++
		out = append(out, batches[i]...)
	}
	if readable == 0 {
		return nil, ErrNoInput
	}
	l.log.WithFields(logrus.Fields{
		"files":   len(files),
		"ok":      readable,
		"records": len(out),
	}).Debug("input loaded")
	return out, nil
}

// LoadFile reads a single file
// Decode problems degrade the file to raw lines, only read errors are returned
func (l Loader) LoadFile(path string) ([]event.RawRecord, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, ErrReadFile{Path: path, Err: err}
	}
	name, data, err := decompress(filepath.Base(path), data)
	if err != nil {
		return nil, ErrReadFile{Path: path, Err: err}
	}
	rows, format := decode(name, data)
	l.log.WithFields(logrus.Fields{
		"path":    path,
		"format":  format.String(),
		"records": len(rows),
	}).Trace("decoded")
	l.count(format.String(), len(rows))

	out := make([]event.RawRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, event.RawRecord{Fields: row, OriginFile: path})
	}
	return out, nil
}

func (l Loader) count(format string, records int) {
	if l.metrics == nil {
		return
	}
	l.metrics.FilesTotal.WithLabelValues(format).Inc()
	l.metrics.RecordsTotal.WithLabelValues(format).Add(float64(records))
}
