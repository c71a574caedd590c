// Command bot plays a scripted host against a running station: it sends
// event batches over the websocket and prints what comes back.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"stationscience.dev/internal/protocol"
	"stationscience.dev/internal/sim/events"
	"stationscience.dev/internal/sim/vessel"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "client name")
		script = flag.String("script", "", "JSON file with an array of event batches (default: built-in demo mission)")
		gap    = flag.Duration("gap", 500*time.Millisecond, "pause between batches")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	batches := demoMission()
	if *script != "" {
		var err error
		if batches, err = loadScript(*script); err != nil {
			logger.Fatalf("load script: %v", err)
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 16},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	go readLoop(conn, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	for i, b := range batches {
		msg, err := eventMsg(fmt.Sprintf("r%d", i+1), b)
		if err != nil {
			logger.Fatalf("batch %d: %v", i+1, err)
		}
		if err := conn.WriteJSON(msg); err != nil {
			logger.Fatalf("send EVENT: %v", err)
		}
		select {
		case <-stop:
			return
		case <-time.After(*gap):
		}
	}
	logger.Printf("script done (%d batches); ctrl-c to exit", len(batches))
	<-stop
}

func readLoop(conn *websocket.Conn, logger *log.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if json.Unmarshal(msg, &w) == nil {
				logger.Printf("WELCOME session=%s station=%s tick=%d", w.SessionID, w.StationID, w.Tick)
			}
		case protocol.TypeAck:
			var a protocol.AckMsg
			if json.Unmarshal(msg, &a) == nil {
				logger.Printf("ACK %s accepted=%d rejected=%d %s", a.AckFor, a.Accepted, a.Rejected, a.Code)
			}
		case protocol.TypeNotice:
			var n protocol.NoticeMsg
			if json.Unmarshal(msg, &n) == nil {
				logger.Printf("NOTICE [%s] %s %s", n.Kind, n.Code, n.Text)
			}
		case protocol.TypeStatus:
			var s protocol.StatusMsg
			if json.Unmarshal(msg, &s) == nil {
				logger.Printf("STATUS tick=%d funds=%.0f science=%.1f rep=%.1f contracts=%d",
					s.Tick, s.Progression.Funds, s.Progression.Science, s.Progression.Reputation, len(s.Contracts))
			}
		}
	}
}

func eventMsg(reqID string, batch []events.Event) (protocol.EventMsg, error) {
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Events:          make([]json.RawMessage, 0, len(batch)),
	}
	for _, ev := range batch {
		if err := ev.Validate(); err != nil {
			return msg, err
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return msg, err
		}
		msg.Events = append(msg.Events, b)
	}
	return msg, nil
}

func loadScript(path string) ([][]events.Event, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batches [][]events.Event
	if err := json.Unmarshal(b, &batches); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return batches, nil
}

// demoMission flies one Fundamental Particles experiment to the Mun and
// recovers it. It assumes the first offer the station makes is C000001.
func demoMission() [][]events.Event {
	const exp = "StnSciExperiment1"
	craft := func(body string, sit vessel.Situation, alt float64) *vessel.Vessel {
		return &vessel.Vessel{
			ID: "V1", Name: "Probe", Body: body, Situation: sit, Altitude: alt,
			Parts:    []string{"StnSciLab"},
			Payloads: []*vessel.PayloadInstance{{PartID: "p1", TypeID: exp}},
		}
	}
	part := func(k events.Kind, at float64) events.Event {
		return events.Event{Kind: k, Time: at, VesselID: "V1", PartID: "p1"}
	}
	produce := part(events.Produce, 102)
	produce.Resource = vessel.Eurekas
	produce.Amount = 20

	return [][]events.Event{
		{
			{Kind: events.Unlock, Time: 1, Name: exp},
			{Kind: events.Unlock, Time: 1, Name: "StnSciLab"},
			{Kind: events.Reach, Time: 1, Name: "Mun"},
		},
		{{Kind: events.Accept, Time: 2, ContractID: "C000001"}},
		{{Kind: events.VesselState, Time: 3, Vessel: craft("Kerbin", vessel.Prelaunch, 0)}},
		{{Kind: events.SituationChange, Time: 10, VesselID: "V1", From: vessel.Prelaunch, To: vessel.Flying}},
		{{Kind: events.VesselState, Time: 100, Vessel: craft("Mun", vessel.Orbiting, 20000)}},
		{part(events.StartExperiment, 101), produce},
		{part(events.DeployExperiment, 103)},
		{{Kind: events.Recovered, Time: 500, Snapshot: &vessel.Snapshot{
			VesselID: "V1",
			Payloads: []vessel.RecoveredPayload{{
				PartID: "p1", TypeID: exp, Launched: "10", Completed: "103",
				Data: []string{exp + "@MunInSpaceLow"},
			}},
		}}},
	}
}
