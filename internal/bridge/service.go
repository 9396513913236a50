package bridge

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/spilink/internal/admin"
	"github.com/danmuck/spilink/internal/config"
	"github.com/danmuck/spilink/internal/hal"
	"github.com/danmuck/spilink/internal/hal/halfake"
	"github.com/danmuck/spilink/internal/hooks"
	"github.com/danmuck/spilink/internal/observability"
	"github.com/danmuck/spilink/internal/transport"
	"github.com/rs/zerolog"
)

var ErrInvalidHeartbeatInterval = errors.New("bridge: invalid heartbeat interval")

// ServiceConfig configures the standalone daemon.
type ServiceConfig struct {
	Bridge            config.BridgeConfig
	HeartbeatInterval time.Duration
	// Subsystems replaces the built-in serial/netcard/bluetooth set when set.
	Subsystems *hooks.Registry
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Bridge:            config.Default(),
		HeartbeatInterval: 30 * time.Second,
	}
}

// Service owns one link for the lifetime of the process.
type Service struct {
	cfg      ServiceConfig
	platform hal.Platform
	link     *transport.Context
	logger   zerolog.Logger
	notified atomic.Uint64
}

func NewService(cfg ServiceConfig) *Service {
	return NewServiceWithPlatform(cfg, cfg.Bridge.NewPlatform())
}

// NewServiceWithPlatform binds the link to platform instead of the one the
// config names.
func NewServiceWithPlatform(cfg ServiceConfig, platform hal.Platform) *Service {
	logger := observability.Component("bridge")
	subs := cfg.Subsystems
	if subs == nil {
		subs = builtinSubsystems(logger)
	}
	opts := cfg.Bridge.TransportOptions(platform)
	opts.Hooks = subs
	tl := observability.LinkComponent("transport", cfg.Bridge.Transport.Name)
	opts.Logger = &tl

	return &Service{
		cfg:      cfg,
		platform: platform,
		link:     transport.New(opts),
		logger:   logger.With().Str("link", opts.Name).Logger(),
	}
}

func (s *Service) Link() *transport.Context {
	return s.link
}

// Notifications counts NotifyNewData calls from the link.
func (s *Service) Notifications() uint64 {
	return s.notified.Load()
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

func (s *Service) RunContext(ctx context.Context) error {
	if err := s.bootstrap(ctx); err != nil {
		return err
	}
	defer s.link.Teardown()
	return s.serve(ctx)
}

func (s *Service) bootstrap(ctx context.Context) error {
	if s.cfg.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	observability.RegisterMetrics()
	if err := s.link.Init(ctx, transport.AdapterFunc(s.onNewData)); err != nil {
		return err
	}
	s.logger.Info().
		Str("platform", s.cfg.Bridge.Transport.Platform).
		Int("handshake_pin", s.cfg.Bridge.Handshake.Pin).
		Msg("bridge_ready")
	return nil
}

func (s *Service) onNewData() {
	n := s.notified.Add(1)
	s.logger.Debug().Uint64("notifications", n).Msg("frame_ready")
}

func (s *Service) serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	adminErr := make(chan error, 1)
	if s.cfg.Bridge.Admin.Enabled && strings.TrimSpace(s.cfg.Bridge.Admin.Addr) != "" {
		srv := admin.New(s.link, admin.Options{
			Addr:        s.cfg.Bridge.Admin.Addr,
			CorsOrigins: s.cfg.Bridge.Admin.CorsOrigins,
			Token:       s.cfg.Bridge.Admin.Token,
		})
		go func() {
			adminErr <- srv.Run(ctx)
		}()
	}

	if loop, ok := s.platform.(*halfake.Platform); ok {
		if interval := s.cfg.Bridge.PulseInterval(); interval > 0 {
			go loop.Line.Pulse(ctx, interval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("bridge_shutdown")
			return nil
		case err := <-adminErr:
			if err != nil {
				return err
			}
		case <-ticker.C:
			st := s.link.Stats()
			s.logger.Info().
				Str("state", st.State.String()).
				Int("tx_depth", st.TXDepth).
				Int("rx_depth", st.RXDepth).
				Uint64("transactions", st.Transactions).
				Uint64("failures", st.TransactionFailures).
				Uint64("rejected", st.FramesRejected).
				Uint64("dropped", st.FramesDropped).
				Msg("bridge_heartbeat")
		}
	}
}
