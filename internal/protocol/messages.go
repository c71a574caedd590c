package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
	// Catalogs asks the server to send CATALOG messages after WELCOME.
	Catalogs bool `json:"catalogs,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	StationID       string         `json:"station_id"`
	TickRateHz      int            `json:"tick_rate_hz"`
	Tick            uint64         `json:"tick"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	Experiments DigestRef `json:"experiments"`
	Bodies      DigestRef `json:"bodies"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CATALOG (server -> client): one catalog in a single part.
type CatalogMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`   // "experiments" or "bodies"
	Digest          string `json:"digest"` // sha256 hex
	Data            any    `json:"data"`
}

// ExperimentEntry is one item of the "experiments" catalog. Info is the
// requirement text shown to players.
type ExperimentEntry struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Challenge           float64  `json:"challenge"`
	Prereqs             []string `json:"prereqs"`
	EurekasRequired     float64  `json:"eurekas_required,omitempty"`
	KuarqsRequired      float64  `json:"kuarqs_required,omitempty"`
	KuarqHalflife       float64  `json:"kuarq_halflife,omitempty"`
	BioproductsRequired float64  `json:"bioproducts_required,omitempty"`
	Info                string   `json:"info"`
}

// EVENT (client -> server): host notifications in arrival order.
type EventMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ReqID           string            `json:"req_id,omitempty"`
	Events          []json.RawMessage `json:"events"`
}

// ACK (server -> client) reports whether an EVENT batch was queued.
// Events are applied on a later tick; their results arrive as NOTICE/STATUS.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	Accepted        int    `json:"accepted"`
	Rejected        int    `json:"rejected,omitempty"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}
