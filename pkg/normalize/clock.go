package normalize

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// Clock supplies the last resort timestamp for records that carry none
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant
type FixedClock time.Time

// Now implements Clock
func (c FixedClock) Now() time.Time { return time.Time(c) }

type mtimeEntry struct {
	ts time.Time
	ok bool
}

// mtimeCache memoizes origin file modification times
// Batches routinely hold thousands of records per file, one stat per file is enough
type mtimeCache struct {
	fs    afero.Fs
	cache *lru.Cache[string, mtimeEntry]
}

func newMtimeCache(fs afero.Fs, size int) *mtimeCache {
	cache, _ := lru.New[string, mtimeEntry](size)
	return &mtimeCache{fs: fs, cache: cache}
}

func (m *mtimeCache) lookup(path string) (time.Time, bool) {
	if path == "" || m.fs == nil {
		return time.Time{}, false
	}
	if e, ok := m.cache.Get(path); ok {
		return e.ts, e.ok
	}
	var e mtimeEntry
	if info, err := m.fs.Stat(path); err == nil {
		e = mtimeEntry{ts: naive(info.ModTime().UTC()), ok: true}
	}
	m.cache.Add(path, e)
	return e.ts, e.ok
}
