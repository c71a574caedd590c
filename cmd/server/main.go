package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stationscience.dev/internal/persistence/indexdb"
	persistlog "stationscience.dev/internal/persistence/log"
	"stationscience.dev/internal/persistence/snapshot"
	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/station"
	"stationscience.dev/internal/sim/tuning"
	"stationscience.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		stationID  = flag.String("station", "station_1", "station id")
		seed       = flag.Int64("seed", 1337, "contract seed (used only when starting a fresh station)")
		configDir  = flag.String("configs", "", "directory with experiments.json and bodies.json (default: built-in catalogs)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + catalogs + snapshot metadata)")
		eventQueue = flag.Int("event_queue", 4096, "max host events waiting for the next tick")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := loadCatalogs(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	stationDir := filepath.Join(*dataDir, "stations", *stationID)
	_ = os.MkdirAll(stationDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" && *configDir != "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := loadTuning(tp, logger)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(stationDir)
	}
	var resume *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.StationID != "" && snap.Header.StationID != *stationID {
			logger.Fatalf("snapshot station id mismatch: flag=%s snap=%s", *stationID, snap.Header.StationID)
		}
		if snap.TickRate > 0 && snap.TickRate != tune.TickRateHz {
			logger.Printf("snapshot tick rate %d overrides tuning %d", snap.TickRate, tune.TickRateHz)
			tune.TickRateHz = snap.TickRate
		}
		*seed = snap.Seed
		resume = &snap
	}

	// Optional read-model index (does not affect determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(stationDir, "index", "station.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	st, err := station.New(station.Config{
		ID:         *stationID,
		Seed:       *seed,
		Tuning:     tune,
		EventQueue: *eventQueue,
	}, cats, log.New(os.Stdout, "[station] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("station: %v", err)
	}
	if resume != nil {
		if err := st.ImportSnapshot(*resume); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), st.Tick())
	}

	ctx, cancel := signalContext()
	defer cancel()

	mirror, err := buildMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	defer mirror.Close()
	saveSnapshot := func(snap snapshot.SnapshotV1) (string, error) {
		path, err := persistSnapshot(stationDir, snap, idx)
		if err == nil {
			mirror.Enqueue(path)
		}
		return path, err
	}

	tickLog := persistlog.NewTickLogger(stationDir)
	auditLog := persistlog.NewAuditLogger(stationDir)
	if mirror != nil {
		tickLog.OnClosed(mirror.Enqueue)
		auditLog.OnClosed(mirror.Enqueue)
	}
	defer tickLog.Close()
	defer auditLog.Close()
	st.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	st.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	st.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if _, err := saveSnapshot(snap); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := st.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("station stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *stationID, st, idx)
		writeMirrorMetrics(rw, *stationID, mirror)
	})

	if envBool("SS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints (do not affect determinism).
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			rw.Header().Set("Content-Type", "application/json")
			snap, err := st.RequestSnapshot(ctx2)
			if err == nil {
				var path string
				if path, err = saveSnapshot(snap); err == nil {
					_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": snap.Header.Tick, "path": path})
					return
				}
			}
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		})
	} else {
		logger.Printf("admin endpoints disabled (SS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("SS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(st, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The loop has stopped; export directly for the shutdown snapshot.
	<-runDone
	if st.Tick() > 0 {
		path, err := saveSnapshot(st.ExportSnapshot(st.Tick() - 1))
		if err != nil {
			logger.Printf("final snapshot: %v", err)
		} else {
			logger.Printf("final snapshot=%s", path)
		}
	}
}

func loadCatalogs(dir string) (*catalogs.Catalogs, error) {
	if strings.TrimSpace(dir) == "" {
		return catalogs.Default()
	}
	return catalogs.Load(dir)
}

// loadTuning falls back to the defaults when no tuning file exists.
func loadTuning(path string, logger *log.Logger) (tuning.Tuning, error) {
	if path == "" {
		return tuning.Defaults(), nil
	}
	t, err := tuning.Load(path)
	if os.IsNotExist(err) {
		logger.Printf("tuning not found (%s); using defaults", path)
		return tuning.Defaults(), nil
	}
	return t, err
}

// persistSnapshot writes snap under stationDir and records it in the index.
func persistSnapshot(stationDir string, snap snapshot.SnapshotV1, idx *indexdb.SQLiteIndex) (string, error) {
	path := filepath.Join(stationDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	idx.RecordSnapshot(path, snap)
	idx.RecordSnapshotState(snap)
	return path, nil
}

func writeMetrics(rw http.ResponseWriter, stationID string, st *station.Station, idx *indexdb.SQLiteIndex) {
	fmt.Fprintf(rw, "# HELP stationscience_station_tick Current station tick.\n")
	fmt.Fprintf(rw, "# TYPE stationscience_station_tick gauge\n")
	fmt.Fprintf(rw, "stationscience_station_tick{station=%q} %d\n", stationID, st.CurrentTick())

	fmt.Fprintf(rw, "# HELP stationscience_event_queue_depth Host events waiting for the next tick.\n")
	fmt.Fprintf(rw, "# TYPE stationscience_event_queue_depth gauge\n")
	fmt.Fprintf(rw, "stationscience_event_queue_depth{station=%q} %d\n", stationID, st.QueueDepth())

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP stationscience_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE stationscience_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "stationscience_index_queue_depth{station=%q} %d\n", stationID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP stationscience_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE stationscience_index_dropped_total counter\n")
	fmt.Fprintf(rw, "stationscience_index_dropped_total{station=%q,kind=%q} %d\n", stationID, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "stationscience_index_dropped_total{station=%q,kind=%q} %d\n", stationID, "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "stationscience_index_dropped_total{station=%q,kind=%q} %d\n", stationID, "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "stationscience_index_dropped_total{station=%q,kind=%q} %d\n", stationID, "snapshot_state", s.DropSnapshotStateTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(stationDir string) string {
	dir := filepath.Join(stationDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

type multiTickLogger struct {
	a station.TickLogger
	b station.TickLogger
}

func (m multiTickLogger) WriteTick(entry station.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a station.AuditLogger
	b station.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry station.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
