package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "stationscience.dev/internal/persistence/log"
	"stationscience.dev/internal/persistence/snapshot"
	"stationscience.dev/internal/sim/station"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "stations"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		latest := latestSnapshot(filepath.Join(*dataDir, "stations", e.Name()))
		if latest == "" {
			fmt.Println(e.Name())
			continue
		}
		fmt.Printf("%s\tlatest=%s\n", e.Name(), filepath.Base(latest))
	}
}

// auditFilter selects audit entries. Zero values match everything.
type auditFilter struct {
	Subject   string
	Action    string
	SinceTick uint64
	ToTick    uint64
}

func (f auditFilter) match(e station.AuditEntry) bool {
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if e.Tick < f.SinceTick {
		return false
	}
	return f.ToTick == 0 || e.Tick <= f.ToTick
}

func readAudit(stationDir string, f auditFilter) ([]station.AuditEntry, error) {
	var out []station.AuditEntry
	err := persistlog.ScanAudits(stationDir, func(e station.AuditEntry) error {
		if f.match(e) {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	stationID := fs.String("station", "", "station id")
	contractID := fs.String("contract", "", "contract id filter (optional)")
	action := fs.String("action", "", "action filter, e.g. CONTRACT_COMPLETE (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*stationID) == "" {
		fmt.Fprintln(os.Stderr, "missing -station")
		os.Exit(2)
	}
	recs, err := readAudit(filepath.Join(*dataDir, "stations", *stationID), auditFilter{
		Subject:   strings.TrimSpace(*contractID),
		Action:    strings.ToUpper(strings.TrimSpace(*action)),
		SinceTick: *sinceTick,
		ToTick:    *toTick,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		printJSON(r)
	}
}

// snapshotSummary is the inspect view of a saved station.
type snapshotSummary struct {
	StationID  string         `json:"station_id"`
	Tick       uint64         `json:"tick"`
	Seed       int64          `json:"seed"`
	TickRate   int            `json:"tick_rate_hz"`
	Clock      float64        `json:"clock"`
	Funds      float64        `json:"funds"`
	Science    float64        `json:"science"`
	Reputation float64        `json:"reputation"`
	XP         float64        `json:"xp"`
	Vessels    int            `json:"vessels"`
	Payloads   int            `json:"payloads"`
	Contracts  map[string]int `json:"contracts"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		StationID:  snap.Header.StationID,
		Tick:       snap.Header.Tick,
		Seed:       snap.Seed,
		TickRate:   snap.TickRate,
		Clock:      snap.Clock,
		Funds:      snap.Progression.Funds,
		Science:    snap.Progression.Science,
		Reputation: snap.Progression.Reputation,
		XP:         snap.Progression.XP,
		Vessels:    len(snap.Vessels),
		Contracts:  map[string]int{},
	}
	for _, v := range snap.Vessels {
		s.Payloads += len(v.Payloads)
	}
	for _, c := range snap.Contracts {
		state := c["state"]
		if state == "" {
			state = "UNKNOWN"
		}
		s.Contracts[state]++
	}
	return s
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	stationID := fs.String("station", "", "station id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*stationID) == "" {
			fmt.Fprintln(os.Stderr, "missing -station or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "stations", *stationID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

func latestSnapshot(stationDir string) string {
	dir := filepath.Join(stationDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	ticks := map[uint64]string{}
	keys := make([]uint64, 0, len(ents))
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		ticks[tick] = filepath.Join(dir, name)
		keys = append(keys, tick)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return ticks[keys[len(keys)-1]]
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
