package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogs(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if got := len(c.Payloads.Types); got != 6 {
		t.Fatalf("payload types: got %d want 6", got)
	}
	if c.Payloads.Types[0].ID != "StnSciExperiment1" {
		t.Fatalf("payload order: first=%q", c.Payloads.Types[0].ID)
	}
	if got := c.Payloads.ByID["StnSciExperiment6"].Challenge; got != 3.5 {
		t.Fatalf("experiment6 challenge: %v", got)
	}
	if got := c.Payloads.ByID["StnSciExperiment4"].Requirements.KuarqHalflife; got != 3 {
		t.Fatalf("experiment4 halflife: %v", got)
	}
	if c.Locations.Home != "Kerbin" {
		t.Fatalf("home: %q", c.Locations.Home)
	}
	if got := c.Locations.ByID["Eeloo"].Challenge; got != 13 {
		t.Fatalf("eeloo challenge: %v", got)
	}
	if len(c.Payloads.Digest) != 64 || len(c.Locations.Digest) != 64 {
		t.Fatalf("digests: %q %q", c.Payloads.Digest, c.Locations.Digest)
	}
	if l, ok := c.Locations.Lookup("minmus"); !ok || l.ID != "Minmus" {
		t.Fatalf("lookup minmus: %+v %v", l, ok)
	}
	if got := c.Locations.ByID["Mun"].DisplayName(); got != "the Mun" {
		t.Fatalf("display name: %q", got)
	}
}

func writeCatalogs(t *testing.T, experiments, bodies string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "experiments.json"), []byte(experiments), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bodies.json"), []byte(bodies), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir
}

func TestLoadFromDir(t *testing.T) {
	dir := writeCatalogs(t,
		`[{"id":"A","title":"A","challenge":2,"prereqs":["A"],"eurekas_required":5}]`,
		`[{"id":"Home","challenge":1,"home":true},{"id":"Far","challenge":4}]`)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Payloads.ByID["A"].Requirements.Eurekas != 5 {
		t.Fatalf("requirements not decoded: %+v", c.Payloads.ByID["A"])
	}
	if len(c.Locations.Bodies) != 2 || c.Locations.Home != "Home" {
		t.Fatalf("locations: %+v", c.Locations)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	cases := map[string][2]string{
		"zero challenge": {
			`[{"id":"A","title":"A","challenge":0,"prereqs":[]}]`,
			`[{"id":"Home","challenge":1,"home":true}]`,
		},
		"unknown field": {
			`[{"id":"A","title":"A","challenge":1,"prereqs":[],"colour":"red"}]`,
			`[{"id":"Home","challenge":1,"home":true}]`,
		},
		"negative body": {
			`[{"id":"A","title":"A","challenge":1,"prereqs":[]}]`,
			`[{"id":"Home","challenge":-1,"home":true}]`,
		},
	}
	for name, tc := range cases {
		dir := writeCatalogs(t, tc[0], tc[1])
		if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "schema") {
			t.Fatalf("%s: expected schema error, got %v", name, err)
		}
	}
}

func TestLoadRejectsDuplicatesAndMissingHome(t *testing.T) {
	dir := writeCatalogs(t,
		`[{"id":"A","title":"A","challenge":1,"prereqs":[]},{"id":"A","title":"B","challenge":1,"prereqs":[]}]`,
		`[{"id":"Home","challenge":1,"home":true}]`)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	dir = writeCatalogs(t,
		`[{"id":"A","title":"A","challenge":1,"prereqs":[]}]`,
		`[{"id":"Mun","challenge":3}]`)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "no home") {
		t.Fatalf("expected missing home error, got %v", err)
	}
}
