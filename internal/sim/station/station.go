// Package station runs the authoritative contract loop: host events in,
// contract outcomes, display strings and snapshots out.
package station

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"stationscience.dev/internal/persistence/snapshot"
	"stationscience.dev/internal/protocol"
	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/contracts/lifecycle"
	"stationscience.dev/internal/sim/events"
	"stationscience.dev/internal/sim/experiment"
	"stationscience.dev/internal/sim/progression"
	"stationscience.dev/internal/sim/scheduler"
	"stationscience.dev/internal/sim/tuning"
	"stationscience.dev/internal/sim/vessel"
)

type Config struct {
	ID     string
	Seed   int64
	Tuning tuning.Tuning
	// EventQueue bounds the host event bus.
	EventQueue int
}

type Station struct {
	cfg    Config
	cat    *catalogs.Catalogs
	logger *log.Logger

	engine *experiment.Engine
	book   *lifecycle.Book
	fleet  *vessel.Fleet
	prog   *progression.State
	bus    *events.Bus
	roll   *roller

	slow   *scheduler.Cadence
	offers *scheduler.Cadence

	tick       uint64
	clock      float64
	dt         float64
	offerCycle uint64
	dirty      bool
	// decay holds the last kuarq decay rate per vessel/part. Display only.
	decay map[string]float64
	// published mirrors tick for readers outside the loop.
	published atomic.Uint64

	clients map[string]*client

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	join    chan JoinRequest
	leave   chan string
	snapReq chan chan snapshot.SnapshotV1
	stop    chan struct{}
}

type client struct {
	SessionID string
	Name      string
	Out       chan []byte
}

type JoinRequest struct {
	SessionID string
	Name      string
	Out       chan []byte
}

func New(cfg Config, cat *catalogs.Catalogs, logger *log.Logger) (*Station, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if cat == nil {
		return nil, fmt.Errorf("catalogs required")
	}
	if _, ok := cat.Locations.ByID[cfg.Tuning.HomeBody]; !ok {
		return nil, fmt.Errorf("home body %q not in bodies catalog", cfg.Tuning.HomeBody)
	}
	if cfg.ID == "" {
		cfg.ID = "station_1"
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[station] ", log.LstdFlags|log.Lmicroseconds)
	}
	t := cfg.Tuning
	s := &Station{
		cfg:     cfg,
		cat:     cat,
		logger:  logger,
		engine:  experiment.NewEngine(cat),
		fleet:   vessel.NewFleet(),
		prog:    progression.New(),
		bus:     events.NewBus(cfg.EventQueue),
		dt:      1 / float64(t.TickRateHz),
		slow:    scheduler.New(t.Cadence.SlowEverySeconds, t.Cadence.MinIntervalSeconds),
		offers:  scheduler.New(t.Contracts.OfferEverySeconds, t.Contracts.OfferEverySeconds),
		clients: map[string]*client{},
		decay:   map[string]float64{},
		join:    make(chan JoinRequest, 64),
		leave:   make(chan string, 64),
		snapReq: make(chan chan snapshot.SnapshotV1, 4),
		stop:    make(chan struct{}),
	}
	s.roll = &roller{seed: cfg.Seed}
	s.book = lifecycle.NewBook(lifecycle.ConfigFrom(t), cat, s.roll, logger)
	return s, nil
}

func (s *Station) SetTickLogger(l TickLogger)                    { s.tickLogger = l }
func (s *Station) SetAuditLogger(l AuditLogger)                  { s.auditLogger = l }
func (s *Station) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }

func (s *Station) ID() string                   { return s.cfg.ID }
func (s *Station) TickRateHz() int              { return s.cfg.Tuning.TickRateHz }
func (s *Station) Catalogs() *catalogs.Catalogs { return s.cat }

// Tick is the next tick to be stepped. Only safe from the loop goroutine or
// while the loop is not running.
func (s *Station) Tick() uint64 { return s.tick }

// CurrentTick is Tick for callers on other goroutines.
func (s *Station) CurrentTick() uint64 { return s.published.Load() }

// Submit validates ev and queues it for the next tick. A full queue
// returns ErrBusy.
func (s *Station) Submit(ev events.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if !s.bus.Publish(ev) {
		return ErrBusy
	}
	return nil
}

// QueueDepth is the number of events waiting for the next tick.
func (s *Station) QueueDepth() int { return s.bus.Len() }

func (s *Station) Join() chan<- JoinRequest { return s.join }
func (s *Station) Leave() chan<- string     { return s.leave }

// RequestSnapshot asks the loop for a snapshot of the current state.
func (s *Station) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	resp := make(chan snapshot.SnapshotV1, 1)
	select {
	case s.snapReq <- resp:
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case snap := <-resp:
		return snap, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

func (s *Station) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.join:
			s.handleJoin(req)
		case id := <-s.leave:
			delete(s.clients, id)
		case resp := <-s.snapReq:
			resp <- s.ExportSnapshot(s.lastTick())
		case <-ticker.C:
			s.step(s.bus.Drain(0))
		}
	}
}

func (s *Station) Stop() { close(s.stop) }

func (s *Station) lastTick() uint64 {
	if s.tick == 0 {
		return 0
	}
	return s.tick - 1
}

func (s *Station) handleJoin(req JoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	s.clients[req.SessionID] = &client{SessionID: req.SessionID, Name: req.Name, Out: req.Out}
	s.dirty = true
}

// StepOnce advances the station by a single tick using the same ordering
// as the server loop. It is meant for replays and tests.
func (s *Station) StepOnce(evs []events.Event) (tick uint64, digest string) {
	tick = s.tick
	s.step(evs)
	return tick, s.stateDigest(tick)
}

func (s *Station) step(evs []events.Event) {
	nowTick := s.tick
	s.roll.reset(nowTick)

	prev := s.clock
	s.clock += s.dt

	recorded := make([]events.Event, 0, len(evs))
	for _, ev := range evs {
		if ev.Time <= 0 {
			ev.Time = s.clock
		}
		if ev.Time > s.clock {
			s.clock = ev.Time
		}
		s.apply(nowTick, ev)
		recorded = append(recorded, ev)
	}
	if len(recorded) > 0 {
		s.dirty = true
	}

	// Fast cadence: decay runs over the whole elapsed time, including jumps.
	elapsed := s.clock - prev
	clear(s.decay)
	for _, v := range s.fleet.All() {
		for _, p := range v.Payloads {
			if rate := s.engine.FixedUpdate(p, elapsed); rate > 0 {
				s.decay[payloadKey(v.ID, p.PartID)] = rate
			}
		}
	}

	if s.slow.Due(s.clock) {
		s.updateExperiments(nowTick)
		s.applyOutcomes(nowTick, s.book.Reconcile(s.clock, s.fleet.All()))
		s.dirty = true
	}
	if s.offers.Due(s.clock) {
		s.offer(nowTick)
	}

	digest := s.stateDigest(nowTick)
	if s.tickLogger != nil && len(recorded) > 0 {
		if err := s.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Time: s.clock, Events: recorded, Digest: digest}); err != nil {
			s.logger.Printf("tick log: %v", err)
		}
	}

	if s.dirty {
		s.publishStatus(nowTick)
		s.dirty = false
	}

	if every := uint64(s.cfg.Tuning.SnapshotEveryTicks); s.snapshotSink != nil && nowTick != 0 && every > 0 && nowTick%every == 0 {
		snap := s.ExportSnapshot(nowTick)
		select {
		case s.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	s.tick++
	s.published.Store(s.tick)
}

// offer tries to add one contract. Prestige rotates through the three levels.
func (s *Station) offer(nowTick uint64) {
	prestige := prestiges[s.offerCycle%uint64(len(prestiges))]
	c, err := s.book.Generate(s.prog, prestige, s.clock)
	if err != nil {
		return
	}
	s.offerCycle++
	s.dirty = true
	s.writeAudit(nowTick, offerAudit(c))
	s.notify(nowTick, protocol.NoticeMsg{Kind: noticeOffered, ContractID: c.ID, Text: "New contract offered: " + c.Title()})
}

var prestiges = []string{lifecycle.PrestigeTrivial, lifecycle.PrestigeSignificant, lifecycle.PrestigeExceptional}
