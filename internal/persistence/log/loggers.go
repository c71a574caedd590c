package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"stationscience.dev/internal/sim/station"
)

// JSONLZstdWriter appends one JSON document per line to hourly zstd files
// named <prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	// onClosed receives each finished file after it is closed.
	onClosed func(path string)

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// OnClosed registers fn to run for each file the writer finishes, on
// rotation or Close.
func (w *JSONLZstdWriter) OnClosed(fn func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onClosed = fn
}

// Flush pushes buffered lines through the encoder so readers of the current
// file see them before rotation.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
		if w.onClosed != nil {
			w.onClosed(w.pathForHour(w.curHour))
		}
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Files lists the rotated files for prefix under dir, oldest first.
func Files(dir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ScanJSONL calls fn for each line of a zstd JSONL file. A file cut off by a
// crash yields the lines that decoded before the damage, then the error.
func ScanJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// TickLogger writes one JSONL entry per logged tick (compressed).
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(stationDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(stationDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(v station.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) OnClosed(fn func(path string))          { l.w.OnClosed(fn) }
func (l *TickLogger) Close() error                           { return l.w.Close() }

// ScanTicks replays every tick entry under stationDir in file order.
func ScanTicks(stationDir string, fn func(station.TickLogEntry) error) error {
	paths, err := Files(filepath.Join(stationDir, "events"), "events")
	if err != nil {
		return err
	}
	for _, p := range paths {
		err := ScanJSONL(p, func(line []byte) error {
			var e station.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(p), err)
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AuditLogger writes contract audit JSONL entries (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(stationDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(stationDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v station.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) OnClosed(fn func(path string))          { l.w.OnClosed(fn) }
func (l *AuditLogger) Close() error                          { return l.w.Close() }

// ScanAudits reads every audit entry under stationDir in file order.
func ScanAudits(stationDir string, fn func(station.AuditEntry) error) error {
	paths, err := Files(filepath.Join(stationDir, "audit"), "audit")
	if err != nil {
		return err
	}
	for _, p := range paths {
		err := ScanJSONL(p, func(line []byte) error {
			var e station.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(p), err)
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
