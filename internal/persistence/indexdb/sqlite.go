// Package indexdb keeps a queryable SQLite index of the station logs. The
// JSONL logs and snapshots stay the source of truth; the index may drop
// writes when it falls behind.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"stationscience.dev/internal/persistence/snapshot"
	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/station"
	"stationscience.dev/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick          atomic.Uint64
	dropAudit         atomic.Uint64
	dropSnapshot      atomic.Uint64
	dropSnapshotState atomic.Uint64
}

type Stats struct {
	QueueDepth             int
	QueueCapacity          int
	DropTickTotal          uint64
	DropAuditTotal         uint64
	DropSnapshotTotal      uint64
	DropSnapshotStateTotal uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqSnapshotState
)

type req struct {
	kind reqKind

	tick     station.TickLogEntry
	audit    station.AuditEntry
	snapshot snapshotRow
	state    []contractRow
	stateAt  uint64
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Seed       int64
	Contracts  int
	Vessels    int
	Funds      float64
	Science    float64
	Reputation float64
}

type contractRow struct {
	ID          string
	State       string
	PayloadType string
	Location    string
	Prestige    string
	RawJSON     string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			time REAL NOT NULL,
			digest TEXT NOT NULL,
			events INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			vessel_id TEXT,
			contract_id TEXT,
			event_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_vessel_tick ON events(vessel_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_contract_tick ON events(contract_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			time REAL NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			subject TEXT,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_subject_tick ON audits(subject, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action_tick ON audits(action, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			contracts INTEGER NOT NULL,
			vessels INTEGER NOT NULL,
			funds REAL NOT NULL,
			science REAL NOT NULL,
			reputation REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS contract_state (
			contract_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			payload_type TEXT NOT NULL,
			location TEXT NOT NULL,
			prestige TEXT NOT NULL,
			as_of_tick INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_contract_state_state ON contract_state(state);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
		DropTickTotal:          s.dropTick.Load(),
		DropAuditTotal:         s.dropAudit.Load(),
		DropSnapshotTotal:      s.dropSnapshot.Load(),
		DropSnapshotStateTotal: s.dropSnapshotState.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry station.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry station.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Seed:       snap.Seed,
		Contracts:  len(snap.Contracts),
		Vessels:    len(snap.Vessels),
		Funds:      snap.Progression.Funds,
		Science:    snap.Progression.Science,
		Reputation: snap.Progression.Reputation,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordSnapshotState replaces the contract_state table with the contracts
// carried by snap.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	rows := make([]contractRow, 0, len(snap.Contracts))
	for _, c := range snap.Contracts {
		raw, _ := json.Marshal(c)
		rows = append(rows, contractRow{
			ID:          c["id"],
			State:       c["state"],
			PayloadType: c["experimentType"],
			Location:    c["targetBody"],
			Prestige:    c["prestige"],
			RawJSON:     string(raw),
		})
	}
	s.enqueue(req{kind: reqSnapshotState, state: rows, stateAt: snap.Header.Tick}, &s.dropSnapshotState)
}

type experimentRow struct {
	catalogs.PayloadType
	Eurekas       float64 `json:"eurekas_required,omitempty"`
	Kuarqs        float64 `json:"kuarqs_required,omitempty"`
	KuarqHalflife float64 `json:"kuarq_halflife,omitempty"`
	Bioproducts   float64 `json:"bioproducts_required,omitempty"`
}

// UpsertCatalogs stores the catalogs and tuning the station runs with.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	{
		exps := make([]experimentRow, 0, len(cats.Payloads.Types))
		for _, pt := range cats.Payloads.Types {
			r := pt.Requirements
			exps = append(exps, experimentRow{
				PayloadType:   pt,
				Eurekas:       r.Eurekas,
				Kuarqs:        r.Kuarqs,
				KuarqHalflife: r.KuarqHalflife,
				Bioproducts:   r.Bioproducts,
			})
		}
		if b, _ := json.Marshal(exps); len(b) > 0 {
			rows = append(rows, kv{name: "experiments", digest: cats.Payloads.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Locations.Bodies); len(b) > 0 {
		rows = append(rows, kv{name: "bodies", digest: cats.Locations.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,time,digest,events,raw_json) VALUES(?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,kind,vessel_id,contract_id,event_json) VALUES(?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,time,actor,action,subject,reason,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,contracts,vessels,funds,science,reputation) VALUES(?,?,?,?,?,?,?,?)`)
	insertContract, _ := s.db.Prepare(`INSERT OR REPLACE INTO contract_state(contract_id,state,payload_type,location,prestige,as_of_tick,raw_json) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, insertAudit, insertSnapshot, insertContract} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(int64(r.tick.Tick), r.tick.Time, r.tick.Digest, len(r.tick.Events), string(b)); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for i, ev := range r.tick.Events {
				if insertEvent == nil {
					break
				}
				vesselID := ev.VesselID
				if vesselID == "" && ev.Vessel != nil {
					vesselID = ev.Vessel.ID
				}
				if vesselID == "" && ev.Snapshot != nil {
					vesselID = ev.Snapshot.VesselID
				}
				evJSON, _ := json.Marshal(ev)
				if _, err := tx.Stmt(insertEvent).Exec(int64(r.tick.Tick), i, string(ev.Kind), nullable(vesselID), nullable(ev.ContractID), string(evJSON)); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(int64(a.Tick), seq, a.Time, a.Actor, a.Action, nullable(a.Subject), nullable(a.Reason), string(raw)); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(int64(sn.Tick), sn.Path, sn.Seed, sn.Contracts, sn.Vessels, sn.Funds, sn.Science, sn.Reputation); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshotState:
			if _, err := tx.Exec(`DELETE FROM contract_state`); err != nil {
				rollback()
				continue
			}
			for _, c := range r.state {
				if insertContract == nil {
					break
				}
				if _, err := tx.Stmt(insertContract).Exec(c.ID, c.State, c.PayloadType, c.Location, c.Prestige, int64(r.stateAt), c.RawJSON); err != nil {
					rollback()
					break
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
