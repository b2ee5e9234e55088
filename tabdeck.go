// Package tabdeck composes the tab coordination core with its collaborators
// and the optional HTTP debug surface.
package tabdeck

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/core"
	"pkt.systems/tabdeck/httpapi"
	"pkt.systems/tabdeck/internal/eventbus"
	"pkt.systems/tabdeck/internal/metrics"
	"pkt.systems/tabdeck/schema"
)

// Server runs the core service and its surfaces.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Service() core.Service
	Events() *eventbus.Bus
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	HTTP    httpapi.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP    bool
	enableRestore bool
}

// WithHTTP enables the HTTP debug surface.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithRestore loads the persisted tab list on start, opening a home tab when
// nothing was saved.
func WithRestore() ServerOption {
	return func(o *serverOptions) { o.enableRestore = true }
}

// New constructs a composable tabdeck server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	serviceDeps := deps.ServiceDeps
	if serviceDeps.Metrics == nil {
		serviceDeps.Metrics = metrics.New()
	}
	bus := eventbus.New(serviceDeps.Logger)
	sinks := []core.EventSink{serviceDeps.EventSink, bus}
	var hub *httpapi.Hub
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HTTP.HubHistory)
		sinks = append(sinks, hub)
	}
	serviceDeps.EventSink = fanout(sinks...)

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, service, service, hub, serviceDeps.Metrics)
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
		bus:     bus,
		httpSrv: httpSrv,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	bus     *eventbus.Bus
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	runDone chan struct{}
	started bool
}

func (s *compositeServer) Service() core.Service {
	return s.service
}

func (s *compositeServer) Events() *eventbus.Bus {
	return s.bus
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.runDone = make(chan struct{})
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"restore", s.options.enableRestore,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
	)

	go func() {
		defer close(s.runDone)
		if err := s.service.Run(s.ctx); err != nil {
			log.Error("service run failed", "err", err)
			s.errCh <- err
		}
	}()

	if s.options.enableRestore {
		if err := s.restore(s.ctx); err != nil {
			s.cancel()
			<-s.runDone
			return err
		}
	}

	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			if err := s.httpSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) restore(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	resp, err := s.service.Restore(ctx, schema.RestoreRequest{})
	if err != nil {
		log.Error("server restore failed", "err", err)
		return err
	}
	if len(resp.List.Tabs) > 0 {
		log.Info("server restore ok", "tabs", len(resp.List.Tabs), "active", resp.List.ActiveIndex, "screenshots", resp.Screenshots)
		return nil
	}
	if _, err := s.service.NewTab(ctx, schema.NewTabRequest{Activate: true}); err != nil {
		return err
	}
	log.Info("server restore empty", "opened", "home")
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	runDone := s.runDone
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		<-runDone
		s.service.Close()
		log.Info("server stop completed")
		return nil
	}
	// Run flushes the tab store before it returns.
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-runDone:
		s.service.Close()
		log.Info("server stopped")
		return nil
	}
}
