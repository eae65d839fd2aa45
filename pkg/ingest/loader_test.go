package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/markuskont/go-mini-siem/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoader(t *testing.T, files map[string][]byte, c Config) *Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, body := range files {
		require.NoError(t, afero.WriteFile(fs, path, body, 0o644))
	}
	logger, _ := test.NewNullLogger()
	c.Fs = fs
	c.Logger = logger
	return NewLoader(c)
}

func gz(t *testing.T, data string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zst(t *testing.T, data string) []byte {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(data), nil)
}

func TestDecode(t *testing.T) {
	for _, c := range []struct {
		name   string
		file   string
		data   string
		format Format
		rows   []map[string]interface{}
	}{
		{
			name:   "json array",
			file:   "a.json",
			data:   `[{"EventID": 4625}, {"EventID": 4624}]`,
			format: FormatJSON,
			rows: []map[string]interface{}{
				{"EventID": float64(4625)},
				{"EventID": float64(4624)},
			},
		},
		{
			name:   "json object",
			file:   "a.json",
			data:   `{"msg": "hello"}`,
			format: FormatJSON,
			rows:   []map[string]interface{}{{"msg": "hello"}},
		},
		{
			name:   "ndjson with blank lines",
			file:   "a.ndjson",
			data:   "{\"a\": 1}\n\n{\"b\": \"x\"}\n",
			format: FormatNDJSON,
			rows: []map[string]interface{}{
				{"a": float64(1)},
				{"b": "x"},
			},
		},
		{
			name:   "malformed ndjson degrades whole file",
			file:   "a.json",
			data:   "{\"a\": 1}\nnot json\n",
			format: FormatRaw,
			rows: []map[string]interface{}{
				{"raw": "{\"a\": 1}"},
				{"raw": "not json"},
			},
		},
		{
			name:   "csv",
			file:   "a.csv",
			data:   "user,host\nalice,ws01\nbob,\n",
			format: FormatCSV,
			rows: []map[string]interface{}{
				{"user": "alice", "host": "ws01"},
				{"user": "bob"},
			},
		},
		{
			name:   "unknown extension",
			file:   "auth.log",
			data:   "Mar  1 10:00:00 host sshd[1]: Failed password\r\n\nsecond\n",
			format: FormatRaw,
			rows: []map[string]interface{}{
				{"raw": "Mar  1 10:00:00 host sshd[1]: Failed password"},
				{"raw": "second"},
			},
		},
		{
			name:   "empty json",
			file:   "a.json",
			data:   "  \n",
			format: FormatJSON,
			rows:   nil,
		},
	} {
		t.Run(c.name, func(t *testing.T) {
			rows, format := decode(c.file, []byte(c.data))
			assert.Equal(t, c.format, format)
			assert.Equal(t, c.rows, rows)
		})
	}
}

func TestDecodeLongLines(t *testing.T) {
	long := strings.Repeat("x", 17*1024*1024)
	for _, c := range []struct {
		name   string
		file   string
		data   string
		format Format
		rows   []map[string]interface{}
	}{
		{
			name:   "raw line over 16MiB",
			file:   "huge.log",
			data:   long + "\nafter\n",
			format: FormatRaw,
			rows: []map[string]interface{}{
				{"raw": long},
				{"raw": "after"},
			},
		},
		{
			name:   "ndjson line over 16MiB",
			file:   "huge.ndjson",
			data:   `{"blob":"` + long + `"}` + "\n" + `{"x":"after"}` + "\n",
			format: FormatNDJSON,
			rows: []map[string]interface{}{
				{"blob": long},
				{"x": "after"},
			},
		},
	} {
		t.Run(c.name, func(t *testing.T) {
			rows, format := decode(c.file, []byte(c.data))
			assert.Equal(t, c.format, format)
			require.Len(t, rows, len(c.rows))
			assert.Equal(t, c.rows, rows)
		})
	}
}

func TestLoadDir(t *testing.T) {
	m := metrics.NewRun()
	l := newLoader(t, map[string][]byte{
		"logs/b.json":        []byte(`[{"user": "a"}]`),
		"logs/a.log":         []byte("line one\nline two\n"),
		"logs/c.ndjson.gz":   gz(t, "{\"x\": 1}\n{\"x\": 2}\n"),
		"logs/d.csv.zst":     zst(t, "k\nv\n"),
		"logs/skip.tmp":      []byte("ignored"),
		"logs/nested/e.json": []byte(`{"nested": true}`),
	}, Config{Exclude: []string{"*.tmp"}, Metrics: m})

	records, err := l.LoadDir("logs")
	require.NoError(t, err)
	require.Len(t, records, 6)

	assert.Equal(t, "logs/a.log", records[0].OriginFile)
	assert.Equal(t, "line one", records[0].Fields["raw"])
	assert.Equal(t, "logs/b.json", records[2].OriginFile)
	assert.Equal(t, "logs/c.ndjson.gz", records[3].OriginFile)
	assert.Equal(t, float64(2), records[4].Fields["x"])
	assert.Equal(t, "v", records[5].Fields["k"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesTotal.WithLabelValues("ndjson")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("raw")))
}

func TestLoadDirRecursiveParallel(t *testing.T) {
	files := map[string][]byte{
		"logs/a.json":        []byte(`{"n": 1}`),
		"logs/nested/b.json": []byte(`{"n": 2}`),
		"logs/nested/c.json": []byte(`{"n": 3}`),
	}
	l := newLoader(t, files, Config{Recursive: true, Workers: 3, Include: []string{"*.json"}})
	records, err := l.LoadDir("logs")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, float64(i+1), r.Fields["n"])
	}
}

func TestLoadDirNoInput(t *testing.T) {
	l := newLoader(t, map[string][]byte{
		"logs/a.gz": []byte("not gzip"),
	}, Config{})
	_, err := l.LoadDir("logs")
	assert.ErrorIs(t, err, ErrNoInput)

	l = newLoader(t, map[string][]byte{"logs/a.tmp": []byte("x")}, Config{Include: []string{"*.json"}})
	_, err = l.LoadDir("logs")
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestLoadFileReadError(t *testing.T) {
	l := newLoader(t, nil, Config{})
	_, err := l.LoadFile("missing.json")
	assert.IsType(t, ErrReadFile{}, err)
}
