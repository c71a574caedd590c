package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"stationscience.dev/internal/protocol"
	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/events"
	"stationscience.dev/internal/sim/experiment"
	"stationscience.dev/internal/sim/station"
)

// Station is the part of the station loop the transport talks to.
type Station interface {
	ID() string
	TickRateHz() int
	CurrentTick() uint64
	Catalogs() *catalogs.Catalogs
	Submit(ev events.Event) error
	Join() chan<- station.JoinRequest
	Leave() chan<- string
}

type Server struct {
	station Station
	log     *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(st Station, logger *log.Logger) *Server {
	return &Server{
		station: st,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.logf("session %s joined from %s", sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			ack := s.handleMessage(msg)
			if ack == nil {
				continue
			}
			b, err := json.Marshal(ack)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		}

		s.station.Leave() <- sessionID
		s.logf("session %s left", sessionID)
	}
}

// handleMessage decodes one client frame and queues its events. It returns
// the ACK to send, or nil for frames that get no reply.
func (s *Server) handleMessage(msg []byte) *protocol.AckMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return s.ack("", 0, 0, protocol.ErrProtoBadRequest, err.Error())
	}
	if base.Type != protocol.TypeEvent {
		return nil
	}
	var em protocol.EventMsg
	if err := json.Unmarshal(msg, &em); err != nil {
		return s.ack("", 0, 0, protocol.ErrProtoBadRequest, err.Error())
	}
	if em.ProtocolVersion != protocol.Version {
		return s.ack(em.ReqID, 0, len(em.Events), protocol.ErrProtoBadRequest, "bad protocol_version")
	}

	var (
		accepted, rejected int
		code, message      string
	)
	for i, raw := range em.Events {
		ev, err := events.Decode(raw)
		if err == nil {
			err = s.station.Submit(ev)
		}
		if err != nil {
			rejected++
			if code == "" {
				code = protocol.ErrBadRequest
				if errors.Is(err, station.ErrBusy) {
					code = protocol.ErrStationBusy
				}
				message = fmt.Sprintf("event %d: %v", i, err)
			}
			continue
		}
		accepted++
	}
	return s.ack(em.ReqID, accepted, rejected, code, message)
}

func (s *Server) ack(reqID string, accepted, rejected int, code, message string) *protocol.AckMsg {
	return &protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Accepted:        accepted,
		Rejected:        rejected,
		Code:            code,
		Message:         message,
		ServerTick:      s.station.CurrentTick(),
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "host"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)
	sessionID = "sess_" + uuid.NewString()

	// Welcome and catalogs go out before the session is registered so they
	// precede the first STATUS.
	if err := writeJSON(conn, s.Welcome(sessionID)); err != nil {
		return "", nil
	}
	if hello.Capabilities.Catalogs {
		for _, c := range s.CatalogMessages() {
			if err := writeJSON(conn, c); err != nil {
				return "", nil
			}
		}
	}

	s.station.Join() <- station.JoinRequest{SessionID: sessionID, Name: hello.ClientName, Out: out}
	return sessionID, out
}

func (s *Server) Welcome(sessionID string) protocol.WelcomeMsg {
	cat := s.station.Catalogs()
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		StationID:       s.station.ID(),
		TickRateHz:      s.station.TickRateHz(),
		Tick:            s.station.CurrentTick(),
		Catalogs: protocol.CatalogDigests{
			Experiments: protocol.DigestRef{Digest: cat.Payloads.Digest, Count: len(cat.Payloads.Types)},
			Bodies:      protocol.DigestRef{Digest: cat.Locations.Digest, Count: len(cat.Locations.Bodies)},
		},
	}
}

func (s *Server) CatalogMessages() []protocol.CatalogMsg {
	cat := s.station.Catalogs()
	return []protocol.CatalogMsg{
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "experiments",
			Digest:          cat.Payloads.Digest,
			Data:            experimentEntries(cat.Payloads.Types),
		},
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "bodies",
			Digest:          cat.Locations.Digest,
			Data:            cat.Locations.Bodies,
		},
	}
}

func experimentEntries(types []catalogs.PayloadType) []protocol.ExperimentEntry {
	out := make([]protocol.ExperimentEntry, 0, len(types))
	for _, pt := range types {
		req := pt.Requirements
		out = append(out, protocol.ExperimentEntry{
			ID:                  pt.ID,
			Title:               pt.Title,
			Challenge:           pt.Challenge,
			Prereqs:             pt.Prereqs,
			EurekasRequired:     req.Eurekas,
			KuarqsRequired:      req.Kuarqs,
			KuarqHalflife:       req.KuarqHalflife,
			BioproductsRequired: req.Bioproducts,
			Info:                experiment.Info(req),
		})
	}
	return out
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
