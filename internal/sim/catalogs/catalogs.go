package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed defaults/*.json schemas/*.json
var files embed.FS

type Catalogs struct {
	Payloads  PayloadCatalog
	Locations LocationCatalog
}

type PayloadCatalog struct {
	// Ordered as listed in experiments.json; candidate enumeration depends on it.
	Types  []PayloadType
	ByID   map[string]PayloadType
	Digest string
}

type PayloadType struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Challenge float64  `json:"challenge"`
	Prereqs   []string `json:"prereqs"`

	Requirements Requirements `json:"-"`
}

// Requirements are the per-experiment resource targets. A zero amount is
// always satisfied.
type Requirements struct {
	Eurekas       float64
	Kuarqs        float64
	Bioproducts   float64
	KuarqHalflife float64
}

type payloadJSON struct {
	PayloadType
	Eurekas       float64 `json:"eurekas_required,omitempty"`
	Kuarqs        float64 `json:"kuarqs_required,omitempty"`
	KuarqHalflife float64 `json:"kuarq_halflife,omitempty"`
	Bioproducts   float64 `json:"bioproducts_required,omitempty"`
}

type LocationCatalog struct {
	Bodies []Location
	ByID   map[string]Location
	Home   string
	Digest string
}

type Location struct {
	ID                      string  `json:"id"`
	Title                   string  `json:"title,omitempty"`
	Challenge               float64 `json:"challenge"`
	Home                    bool    `json:"home,omitempty"`
	Atmosphere              bool    `json:"atmosphere,omitempty"`
	AtmosphereDepth         float64 `json:"atmosphere_depth,omitempty"`
	FlyingAltitudeThreshold float64 `json:"flying_altitude_threshold,omitempty"`
	SpaceAltitudeThreshold  float64 `json:"space_altitude_threshold,omitempty"`
}

// DisplayName falls back to the body id when no title is configured.
func (l Location) DisplayName() string {
	if l.Title != "" {
		return l.Title
	}
	return l.ID
}

// Load reads experiments.json and bodies.json from dir.
func Load(dir string) (*Catalogs, error) {
	read := func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, name))
	}
	return load(read)
}

// Default returns the built-in catalogs.
func Default() (*Catalogs, error) {
	return load(func(name string) ([]byte, error) {
		return files.ReadFile("defaults/" + name)
	})
}

func load(read func(name string) ([]byte, error)) (*Catalogs, error) {
	var out Catalogs

	b, err := read("experiments.json")
	if err != nil {
		return nil, err
	}
	payloads, err := parsePayloads(b)
	if err != nil {
		return nil, fmt.Errorf("experiments.json: %w", err)
	}
	out.Payloads = payloads

	b, err = read("bodies.json")
	if err != nil {
		return nil, err
	}
	locations, err := parseLocations(b)
	if err != nil {
		return nil, fmt.Errorf("bodies.json: %w", err)
	}
	out.Locations = locations

	return &out, nil
}

func parsePayloads(b []byte) (PayloadCatalog, error) {
	var cat PayloadCatalog
	if err := validate("experiments.schema.json", b); err != nil {
		return cat, err
	}
	var raw []payloadJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return cat, err
	}
	cat.ByID = map[string]PayloadType{}
	for _, r := range raw {
		p := r.PayloadType
		if p.ID == "" {
			return cat, fmt.Errorf("experiment missing id")
		}
		if _, dup := cat.ByID[p.ID]; dup {
			return cat, fmt.Errorf("duplicate experiment id: %s", p.ID)
		}
		p.Requirements = Requirements{
			Eurekas:       r.Eurekas,
			Kuarqs:        r.Kuarqs,
			Bioproducts:   r.Bioproducts,
			KuarqHalflife: r.KuarqHalflife,
		}
		cat.Types = append(cat.Types, p)
		cat.ByID[p.ID] = p
	}
	cat.Digest = sha256Hex(b)
	return cat, nil
}

func parseLocations(b []byte) (LocationCatalog, error) {
	var cat LocationCatalog
	if err := validate("bodies.schema.json", b); err != nil {
		return cat, err
	}
	var raw []Location
	if err := json.Unmarshal(b, &raw); err != nil {
		return cat, err
	}
	cat.ByID = map[string]Location{}
	for _, l := range raw {
		if l.ID == "" {
			return cat, fmt.Errorf("body missing id")
		}
		if _, dup := cat.ByID[l.ID]; dup {
			return cat, fmt.Errorf("duplicate body id: %s", l.ID)
		}
		if l.Home {
			if cat.Home != "" {
				return cat, fmt.Errorf("more than one home body: %s, %s", cat.Home, l.ID)
			}
			cat.Home = l.ID
		}
		cat.Bodies = append(cat.Bodies, l)
		cat.ByID[l.ID] = l
	}
	if cat.Home == "" {
		return cat, fmt.Errorf("no home body")
	}
	cat.Digest = sha256Hex(b)
	return cat, nil
}

// Lookup resolves a body id case-insensitively.
func (c LocationCatalog) Lookup(id string) (Location, bool) {
	if l, ok := c.ByID[id]; ok {
		return l, true
	}
	for _, l := range c.Bodies {
		if strings.EqualFold(l.ID, id) {
			return l, true
		}
	}
	return Location{}, false
}

func validate(schemaName string, doc []byte) error {
	src, err := files.ReadFile("schemas/" + schemaName)
	if err != nil {
		return err
	}
	schema, err := jsonschema.CompileString(schemaName, string(src))
	if err != nil {
		return fmt.Errorf("compile %s: %w", schemaName, err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
