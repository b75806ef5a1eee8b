// Package server binds the HTTP router, the fixed middleware chain, and
// the administrative endpoints into one runnable process: a single struct
// built with functional options, started and stopped explicitly, with port
// selection following an environment-override-first precedence.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/id"
	"github.com/EnaiaInc/paper-tiger/pkg/auth"
	"github.com/EnaiaInc/paper-tiger/pkg/billing"
	"github.com/EnaiaInc/paper-tiger/pkg/chaos"
	"github.com/EnaiaInc/paper-tiger/pkg/clock"
	"github.com/EnaiaInc/paper-tiger/pkg/config"
	"github.com/EnaiaInc/paper-tiger/pkg/hydrate"
	"github.com/EnaiaInc/paper-tiger/pkg/idempotency"
	"github.com/EnaiaInc/paper-tiger/pkg/logging"
	"github.com/EnaiaInc/paper-tiger/pkg/resources"
	"github.com/EnaiaInc/paper-tiger/pkg/snapshot"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
	"github.com/EnaiaInc/paper-tiger/pkg/telemetry"
	"github.com/EnaiaInc/paper-tiger/pkg/webhook"
)

// portRangeStart and portRangeEnd bound the ephemeral-port probe used when
// no port is configured.
const (
	portRangeStart = 59000
	portRangeEnd   = 60000
)

// Server composes the resource store fabric, clock, idempotency cache,
// auth/CORS filters, resource dispatchers, hydrator, telemetry bus,
// webhook pipeline, billing engine, and chaos coordinator behind one
// http.Handler.
type Server struct {
	cfg   config.Config
	log   *slog.Logger
	clock *clock.Clock

	registry    *store.Registry
	idempotency *idempotency.Cache
	bus         *telemetry.Bus
	chaos       *chaos.Coordinator
	hydrator    *hydrate.Hydrator
	webhooks    *webhook.Pipeline
	billing     *billing.Engine
	admin       *auth.AdminIssuer

	dispatchers map[string]*resources.Dispatcher

	mu         sync.RWMutex
	httpServer *http.Server
	listenAddr string
	running    bool

	sweepStopOnce sync.Once
	sweepStopCh   chan struct{}
	sweepWG       sync.WaitGroup
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the server's logger (and every subcomponent's,
// where one was not already set explicitly).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithChaos overrides the chaos coordinator constructed from cfg.Chaos.
func WithChaos(c *chaos.Coordinator) Option {
	return func(s *Server) { s.chaos = c }
}

// New builds a Server from cfg. The clock, stores, idempotency cache,
// telemetry bus, webhook pipeline, billing engine, and chaos coordinator
// are all constructed and wired here; callers get back a single Handler
// method to serve and Start/Stop to run the background loops.
func New(cfg config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		log:         logging.Nop(),
		clock:       clock.New(),
		sweepStopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if mode := clock.Mode(cfg.Clock.Mode); mode != "" {
		multiplier := cfg.Clock.Multiplier
		if multiplier <= 0 {
			multiplier = 1
		}
		_ = s.clock.SetMode(mode, multiplier)
	}
	if start, ok := config.StartTime(); ok {
		s.clock.Advance(start - s.clock.Now())
	}

	s.registry = store.NewRegistry()
	for name := range resources.ByName() {
		s.registry.Register(name, store.New(name))
	}
	wireGlobalFallbacks(s.registry)

	s.idempotency = idempotency.New(s.clock, idempotencyTTLSeconds)
	s.bus = telemetry.NewBus()

	if s.chaos == nil {
		s.chaos = chaos.New(cfg.Chaos, 0)
	}

	s.webhooks = webhook.NewPipeline(s.clock, s.chaos, webhookWorkerCount)
	s.webhooks.SetLogger(s.log)
	for _, wc := range cfg.Webhooks {
		s.webhooks.Endpoints().Register(&webhook.Endpoint{
			ID: wc.ID, URL: wc.URL, Secret: wc.Secret, Events: wc.Events,
		})
	}

	s.billing = billing.NewEngine(s.clock, s.registry, s.chaos, s.bus)
	s.billing.SetLogger(s.log)
	s.billing.PollEnabled = cfg.Billing.Enabled

	s.hydrator = hydrate.New(resources.PrefixTable(), s.registry)

	s.dispatchers = make(map[string]*resources.Dispatcher, len(resources.Catalog))
	for _, def := range resources.Catalog {
		s.dispatchers[def.Name] = resources.New(def, s.registry.Get(def.Name), s.clock, s.bus)
	}

	s.bus.Subscribe(telemetry.SubscriberFunc(s.materializeEvent))
	s.bus.Subscribe(telemetry.SubscriberFunc(s.webhooks.Submit))

	s.admin = auth.NewAdminIssuer(cfg.Auth.AdminSecret)

	return s
}

// clockNow is a short alias used by the custom handlers.
func (s *Server) clockNow() int64 { return s.clock.Now() }

// telemetryEvent builds an Event with a fresh id, for handlers that
// publish outside the generic dispatcher's own publish helper.
func telemetryEvent(now int64, eventType string, data map[string]interface{}) telemetry.Event {
	return telemetry.Event{ID: id.Prefixed("evt"), Type: eventType, Created: now, Data: data}
}

// materializeEvent writes every published Event into the "events" store,
// since events are themselves a listable, retrievable resource.
func (s *Server) materializeEvent(e telemetry.Event) {
	events := s.registry.Get("events")
	if events == nil {
		return
	}
	obj := store.NewObject(e.ID, "event", e.Created)
	obj.Livemode = e.Livemode
	obj.Fields["type"] = e.Type
	obj.Fields["data"] = map[string]interface{}{"object": e.Data}
	_, _ = events.Insert(obj)
}

// wireGlobalFallbacks attaches a global fixture namespace, shared across
// livemode and testmode, to the tokens and payment_methods tables.
// Populating that namespace with seed fixtures is deliberately out of
// scope; the fallback plumbing is still wired so a caller — or a future
// seeder — has somewhere to put them.
func wireGlobalFallbacks(registry *store.Registry) {
	globalTokens := store.New("tokens")
	if tokens := registry.Get("tokens"); tokens != nil {
		tokens.WithGlobalFallback(globalTokens)
	}
	globalPaymentMethods := store.New("payment_methods")
	if pms := registry.Get("payment_methods"); pms != nil {
		pms.WithGlobalFallback(globalPaymentMethods)
	}
}

// Start launches the background billing poll and webhook delivery workers
// and binds the HTTP listener, following this precedence: environment
// override, then configured port, then a random ephemeral port in
// 59000-60000 probed for availability.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server: already running")
	}

	listener, err := s.bindListener()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if path := config.SnapshotPath(); path != "" {
		if err := snapshot.Load(s.registry, path); err != nil {
			s.log.Warn("paper-tiger: snapshot load failed", "path", path, "error", err)
		}
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.listenAddr = listener.Addr().String()
	s.running = true
	s.mu.Unlock()

	s.billing.Start()
	s.webhooks.Start()
	s.sweepWG.Add(1)
	go s.idempotencySweepLoop()

	s.log.Info("paper-tiger: listening", "addr", s.listenAddr)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("paper-tiger: http server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP listener and background loops.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if path := config.SnapshotPath(); path != "" {
		if err := snapshot.Save(s.registry, path); err != nil {
			s.log.Warn("paper-tiger: snapshot save failed", "path", path, "error", err)
		}
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.billing.Stop()
	s.webhooks.Stop()
	s.sweepStopOnce.Do(func() { close(s.sweepStopCh) })
	s.sweepWG.Wait()
	s.running = false
	return err
}

// idempotencySweepLoop evicts expired idempotency-cache entries. It ticks
// once per real second but only sweeps once at least idempotencySweepPeriodSeconds
// seconds of virtual time have elapsed since the last sweep, so it still
// behaves as "hourly" in real mode while tracking accelerated/manual clocks
// correctly.
func (s *Server) idempotencySweepLoop() {
	defer s.sweepWG.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastSweep := s.clock.Now()
	for {
		select {
		case <-s.sweepStopCh:
			return
		case <-ticker.C:
			now := s.clock.Now()
			if now-lastSweep >= idempotencySweepPeriodSeconds {
				s.idempotency.Sweep()
				lastSweep = now
			}
		}
	}
}

// Addr returns the bound listen address ("host:port"), valid after Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}

// bindListener picks a port following Start's precedence. cfg.Listen.Port
// already reflects any PAPER_TIGER_PORT environment override, since
// config.Load applies env overrides on top of the parsed file before
// returning — so "environment override, then configured port" collapses
// to one check here.
func (s *Server) bindListener() (net.Listener, error) {
	if s.cfg.Listen.Port > 0 {
		return net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Listen.Port))
	}
	return probeEphemeralPort()
}

// probeEphemeralPort tries every port in [portRangeStart, portRangeEnd),
// starting at a randomly chosen one and wrapping around, returning the
// first one that binds successfully.
func probeEphemeralPort() (net.Listener, error) {
	span := portRangeEnd - portRangeStart
	offset := rand.Intn(span)
	for i := 0; i < span; i++ {
		port := portRangeStart + (offset+i)%span
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return l, nil
		}
	}
	return nil, fmt.Errorf("server: no free port available in %d-%d", portRangeStart, portRangeEnd)
}
