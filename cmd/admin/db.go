package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	stationID := fs.String("station", "", "station id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	state := fs.String("state", "", "contract state filter (contracts)")
	contractID := fs.String("contract", "", "contract id filter (audits, events)")
	vesselID := fs.String("vessel", "", "vessel id filter (events)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*stationID) == "" {
			fmt.Fprintln(os.Stderr, "missing -station or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "stations", *stationID, "index", "station.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rows []any
	switch q {
	case "snapshots":
		rows, err = querySnapshots(db, *limit)
	case "contracts":
		rows, err = queryContracts(db, strings.ToUpper(strings.TrimSpace(*state)), *limit)
	case "audits":
		rows, err = queryAudits(db, strings.TrimSpace(*contractID), *limit)
	case "events":
		rows, err = queryEvents(db, strings.TrimSpace(*vesselID), strings.TrimSpace(*contractID), *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-station ID|-db PATH] snapshots|contracts|audits|events")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

type snapshotRow struct {
	Tick       int64   `json:"tick"`
	Path       string  `json:"path"`
	Seed       int64   `json:"seed"`
	Contracts  int     `json:"contracts"`
	Vessels    int     `json:"vessels"`
	Funds      float64 `json:"funds"`
	Science    float64 `json:"science"`
	Reputation float64 `json:"reputation"`
}

func querySnapshots(db *sql.DB, limit int) ([]any, error) {
	rows, err := db.Query(`SELECT tick,path,seed,contracts,vessels,funds,science,reputation FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Contracts, &r.Vessels, &r.Funds, &r.Science, &r.Reputation); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type contractRow struct {
	ContractID  string `json:"contract_id"`
	State       string `json:"state"`
	PayloadType string `json:"payload_type"`
	Location    string `json:"location"`
	Prestige    string `json:"prestige"`
	AsOfTick    int64  `json:"as_of_tick"`
}

func queryContracts(db *sql.DB, state string, limit int) ([]any, error) {
	q := `SELECT contract_id,state,payload_type,location,prestige,as_of_tick FROM contract_state ORDER BY contract_id LIMIT ?`
	args := []any{limit}
	if state != "" {
		q = `SELECT contract_id,state,payload_type,location,prestige,as_of_tick FROM contract_state WHERE state=? ORDER BY contract_id LIMIT ?`
		args = []any{state, limit}
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r contractRow
		if err := rows.Scan(&r.ContractID, &r.State, &r.PayloadType, &r.Location, &r.Prestige, &r.AsOfTick); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type auditRow struct {
	Tick    int64          `json:"tick"`
	Seq     int            `json:"seq"`
	Time    float64        `json:"time"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Subject sql.NullString `json:"subject"`
	Reason  sql.NullString `json:"reason"`
}

func queryAudits(db *sql.DB, contractID string, limit int) ([]any, error) {
	q := `SELECT tick,seq,time,actor,action,subject,reason FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`
	args := []any{limit}
	if contractID != "" {
		q = `SELECT tick,seq,time,actor,action,subject,reason FROM audits WHERE subject=? ORDER BY tick DESC, seq DESC LIMIT ?`
		args = []any{contractID, limit}
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r auditRow
		if err := rows.Scan(&r.Tick, &r.Seq, &r.Time, &r.Actor, &r.Action, &r.Subject, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type eventRow struct {
	Tick      int64  `json:"tick"`
	Seq       int    `json:"seq"`
	Kind      string `json:"kind"`
	EventJSON string `json:"event_json"`
}

func queryEvents(db *sql.DB, vesselID, contractID string, limit int) ([]any, error) {
	q := `SELECT tick,seq,kind,event_json FROM events ORDER BY tick DESC, seq DESC LIMIT ?`
	args := []any{limit}
	switch {
	case vesselID != "":
		q = `SELECT tick,seq,kind,event_json FROM events WHERE vessel_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
		args = []any{vesselID, limit}
	case contractID != "":
		q = `SELECT tick,seq,kind,event_json FROM events WHERE contract_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
		args = []any{contractID, limit}
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.Tick, &r.Seq, &r.Kind, &r.EventJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
