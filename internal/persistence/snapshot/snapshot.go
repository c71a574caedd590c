package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version   int    `json:"version"`
	StationID string `json:"station_id"`
	Tick      uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed     int64   `json:"seed"`
	TickRate int     `json:"tick_rate_hz"`
	Clock    float64 `json:"clock"`

	// Catalog digests at save time; a mismatch on load is logged, not fatal.
	ExperimentsDigest string `json:"experiments_digest,omitempty"`
	BodiesDigest      string `json:"bodies_digest,omitempty"`

	Contracts   []ContractV1  `json:"contracts"`
	Vessels     []VesselV1    `json:"vessels"`
	Progression ProgressionV1 `json:"progression"`
	Counters    CountersV1    `json:"counters"`

	SlowCadence  CadenceV1 `json:"slow_cadence"`
	OfferCadence CadenceV1 `json:"offer_cadence"`
}

// ContractV1 is a saved contract record: flat string keys and values.
type ContractV1 map[string]string

type VesselV1 struct {
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Body      string      `json:"body"`
	Situation string      `json:"situation"`
	Altitude  float64     `json:"altitude"`
	Parts     []string    `json:"parts,omitempty"`
	Payloads  []PayloadV1 `json:"payloads,omitempty"`
}

type PayloadV1 struct {
	PartID        string  `json:"part_id"`
	TypeID        string  `json:"type_id"`
	LaunchedAt    float64 `json:"launched_at,omitempty"`
	CompletedAt   float64 `json:"completed_at,omitempty"`
	LastSubjectID string  `json:"last_subject_id,omitempty"`

	Eurekas     PoolV1 `json:"eurekas"`
	Kuarqs      PoolV1 `json:"kuarqs"`
	Bioproducts PoolV1 `json:"bioproducts"`

	Data       []string `json:"data,omitempty"`
	Inoperable bool     `json:"inoperable,omitempty"`
}

type PoolV1 struct {
	Amount   float64 `json:"amount"`
	Capacity float64 `json:"capacity"`
	Running  bool    `json:"running,omitempty"`
}

type ProgressionV1 struct {
	XP          float64  `json:"xp"`
	Reputation  float64  `json:"reputation"`
	Funds       float64  `json:"funds"`
	Science     float64  `json:"science"`
	Unlocked    []string `json:"unlocked,omitempty"`
	Reached     []string `json:"reached,omitempty"`
	OrbitedHome bool     `json:"orbited_home,omitempty"`
}

type CountersV1 struct {
	NextContract uint64 `json:"next_contract"`
	OfferCycle   uint64 `json:"offer_cycle"`
}

type CadenceV1 struct {
	Last      float64 `json:"last"`
	Ran       bool    `json:"ran,omitempty"`
	Requested bool    `json:"requested,omitempty"`
}

// WriteSnapshot writes to a temp file and renames it into place, so readers
// never see a partial snapshot.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
