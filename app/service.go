package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomo-delivery/dispatchd/api/httpapi"
	"github.com/tomo-delivery/dispatchd/config"
	"github.com/tomo-delivery/dispatchd/core/dispatch"
	"github.com/tomo-delivery/dispatchd/core/location"
	coremetrics "github.com/tomo-delivery/dispatchd/core/metrics"
	"github.com/tomo-delivery/dispatchd/core/realtime"
	"github.com/tomo-delivery/dispatchd/infra/logger"
	"github.com/tomo-delivery/dispatchd/infra/metrics"
	"github.com/tomo-delivery/dispatchd/infra/mqtt"
	"github.com/tomo-delivery/dispatchd/infra/postgres"
	"github.com/tomo-delivery/dispatchd/infra/redisdir"
)

// Service wires the orchestrator, the location gate and their adapters.
type Service struct {
	Orchestrator *dispatch.Orchestrator
	Gate         *location.Gate
	Hub          *realtime.Hub

	watcher   *config.Watcher
	store     *postgres.Store
	directory *redisdir.Directory
	mqttPub   *mqtt.Publisher
	httpSrv   *http.Server
	log       logger.Logger

	promEnabled bool
	promAddr    string
}

// New creates a Service from the configuration file. The file is
// watched: dispatch settings edited from the admin console apply to the
// next dispatch decision without a restart.
func New(ctx context.Context, cfgPath string) (*Service, error) {
	logg := logger.New("service")
	watcher, err := config.NewWatcher(cfgPath, logger.New("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := watcher.Config()

	var (
		store     *postgres.Store
		directory *redisdir.Directory
		mqttPub   *mqtt.Publisher
		hub       *realtime.Hub
		orch      *dispatch.Orchestrator
	)
	// Undo partial wiring when a later constructor fails.
	ok := false
	defer func() {
		if ok {
			return
		}
		if orch != nil {
			_ = orch.Close()
		}
		if hub != nil {
			hub.Close()
		}
		if mqttPub != nil {
			mqttPub.Disconnect()
		}
		if directory != nil {
			_ = directory.Close()
		}
		if store != nil {
			store.Close()
		}
		_ = watcher.Close()
	}()

	store, err = postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("order store: %w", err)
	}
	directory, err = redisdir.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("rider directory: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	var transports []realtime.Transport
	if cfg.MQTT.Enabled {
		mqttPub, err = mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		transports = append(transports, mqttPub)
	}
	hub = realtime.NewHub(logger.New("realtime"), transports...)

	orch, err = dispatch.New(store, directory, watcher, hub, nil, sink, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	gate, err := location.NewGate(store, directory, hub, sink, logger.New("location"), cfg.Location.Throttle())
	if err != nil {
		return nil, fmt.Errorf("location gate: %w", err)
	}

	router := httpapi.NewRouter(orch, gate, cfg.HTTP.AuthToken, logger.New("api"))
	svc := &Service{
		Orchestrator: orch,
		Gate:         gate,
		Hub:          hub,
		watcher:      watcher,
		store:        store,
		directory:    directory,
		mqttPub:      mqttPub,
		httpSrv:      &http.Server{Addr: cfg.HTTP.Addr, Handler: router},
		log:          logg,
		promEnabled:  cfg.Metrics.PrometheusEnabled,
		promAddr:     cfg.Metrics.PrometheusAddr,
	}
	ok = true
	return svc, nil
}

// Run serves the API and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("serving API on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	err := s.Orchestrator.Close()
	s.Hub.Close()
	if s.mqttPub != nil {
		s.mqttPub.Disconnect()
	}
	if werr := s.watcher.Close(); werr != nil && err == nil {
		err = werr
	}
	if derr := s.directory.Close(); derr != nil && err == nil {
		err = derr
	}
	s.store.Close()
	return err
}
