package main

import (
	"os"
	"path/filepath"
	"testing"

	"stationscience.dev/internal/protocol"
	"stationscience.dev/internal/sim/events"
)

func TestDemoMissionEncodes(t *testing.T) {
	for i, b := range demoMission() {
		msg, err := eventMsg("r", b)
		if err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
		if msg.Type != protocol.TypeEvent || len(msg.Events) != len(b) {
			t.Fatalf("batch %d: %+v", i, msg)
		}
		for _, raw := range msg.Events {
			if _, err := events.Decode(raw); err != nil {
				t.Fatalf("batch %d round trip: %v", i, err)
			}
		}
	}
}

func TestEventMsgRejectsInvalid(t *testing.T) {
	if _, err := eventMsg("r", []events.Event{{Kind: events.Accept}}); err == nil {
		t.Fatalf("expected missing contract_id error")
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	body := `[[{"kind":"UNLOCK","time":1,"name":"StnSciLab"}],[{"kind":"ACCEPT","contract_id":"C000001"}]]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := loadScript(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[1][0].ContractID != "C000001" {
		t.Fatalf("batches = %+v", got)
	}
}
