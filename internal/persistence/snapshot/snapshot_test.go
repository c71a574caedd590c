package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		Header:            Header{Version: 1, StationID: "station_1", Tick: 42},
		Seed:              7,
		TickRate:          50,
		Clock:             12.5,
		ExperimentsDigest: "abc",
		BodiesDigest:      "def",
		Contracts: []ContractV1{
			{"id": "C000001", "state": "ACTIVE", "experimentType": "StnSciExperiment1", "targetBody": "Mun", "value": "1.3"},
		},
		Vessels: []VesselV1{{
			ID: "V1", Name: "Probe", Body: "Mun", Situation: "ORBITING", Altitude: 20000,
			Parts: []string{"StnSciLab"},
			Payloads: []PayloadV1{{
				PartID: "p1", TypeID: "StnSciExperiment1", LaunchedAt: 3, CompletedAt: 9,
				LastSubjectID: "StnSciExperiment1@MunInSpaceLow",
				Eurekas:       PoolV1{Amount: 20, Capacity: 20},
				Data:          []string{"StnSciExperiment1@MunInSpaceLow"},
			}},
		}},
		Progression: ProgressionV1{
			XP: 1, Reputation: 2, Funds: 3, Science: 4,
			Unlocked: []string{"StnSciLab"}, Reached: []string{"Kerbin", "Mun"}, OrbitedHome: true,
		},
		Counters:     CountersV1{NextContract: 1, OfferCycle: 2},
		SlowCadence:  CadenceV1{Last: 12, Ran: true, Requested: true},
		OfferCadence: CadenceV1{Last: 0.02, Ran: true},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "42.snap.zst")
	want := sample()
	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, want)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != want.Header {
		t.Fatalf("header = %+v", h)
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "none.snap.zst")); err == nil {
		t.Fatalf("expected error")
	}
}
