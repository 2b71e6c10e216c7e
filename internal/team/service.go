// Package team launches a squad of agents against one simulator, shares a
// peer registry between them and exposes their status over HTTP.
package team

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roboime/simlink/internal/agent"
	"github.com/roboime/simlink/internal/config"
	"github.com/roboime/simlink/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidHeartbeatInterval = errors.New("team: invalid heartbeat interval")
	ErrAgentFailed              = errors.New("team: agent failed")
)

// ServiceConfig configures one team process.
type ServiceConfig struct {
	Team              config.TeamConfig
	Session           session.Config
	StatusListenAddr  string
	CorsOrigins       []string
	FailFast          bool
	HeartbeatInterval time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Team:              config.DefaultTeamConfig(),
		Session:           session.DefaultConfig(),
		HeartbeatInterval: 5 * time.Second,
	}
}

// Service owns the agents of one team.
type Service struct {
	cfg      ServiceConfig
	registry *agent.PeerRegistry
	handler  agent.Handler
	started  time.Time

	mu     sync.RWMutex
	agents []*agent.Agent

	routerOnce sync.Once
	router     *gin.Engine
	statusAddr atomic.Value
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	cfg.Session = cfg.Session.WithDefaults()
	return &Service{
		cfg:      cfg,
		registry: agent.NewPeerRegistry(),
		started:  time.Now(),
	}
}

// SetHandler installs the per-frame callback every agent loop runs. It must
// be called before Run.
func (s *Service) SetHandler(h agent.Handler) {
	s.handler = h
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext launches the team and runs every agent loop until ctx ends.
func (s *Service) RunContext(ctx context.Context) error {
	if s.cfg.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if err := config.ValidateTeamConfig(s.cfg.Team); err != nil {
		return err
	}
	if err := s.launch(ctx); err != nil {
		if closeErr := s.closeAll(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		if ctx.Err() != nil {
			log.Info().Err(err).Msg("team.Service.RunContext cancelled during launch")
			return nil
		}
		return err
	}
	return s.serve(ctx)
}

// launch builds agents one at a time so each joins the registry before the
// next one starts its handshake.
func (s *Service) launch(ctx context.Context) error {
	for _, unum := range s.cfg.Team.Uniforms() {
		a, err := agent.New(ctx, agent.Options{
			Player:   s.cfg.Team.Player(unum),
			Session:  s.cfg.Session,
			Registry: s.registry,
		})
		if err != nil {
			return fmt.Errorf("launch unum=%d: %w", unum, err)
		}
		if pos, ok := s.cfg.Team.BeamFor(unum); ok {
			if err := a.CommitBeam(pos[0], pos[1], 0); err != nil {
				log.Warn().Int("unum", unum).Err(err).Msg("team.Service.launch beam rejected")
			}
		}
		s.mu.Lock()
		s.agents = append(s.agents, a)
		s.mu.Unlock()
	}
	log.Info().
		Str("team", s.cfg.Team.TeamName).
		Int("agents", s.registry.Len()).
		Msg("team.Service.launch ready")
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	var (
		g       *errgroup.Group
		loopCtx = ctx
	)
	if s.cfg.FailFast {
		g, loopCtx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}

	for _, a := range s.snapshot() {
		a := a
		g.Go(func() error {
			err := a.Run(loopCtx, s.handler)
			if err == nil {
				return nil
			}
			if s.cfg.FailFast {
				return fmt.Errorf("%w: unum=%d: %v", ErrAgentFailed, a.Unum(), err)
			}
			log.Error().Int("unum", a.Unum()).Err(err).Msg("team.Service.serve agent stopped")
			return nil
		})
	}
	if addr := strings.TrimSpace(s.cfg.StatusListenAddr); addr != "" {
		g.Go(func() error {
			return s.serveStatus(loopCtx, addr)
		})
	}
	g.Go(func() error {
		s.heartbeat(loopCtx)
		return nil
	})

	err := g.Wait()
	if closeErr := s.closeAll(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("team.Service.serve close")
	}
	log.Info().Err(err).Msg("team.Service.serve shutdown")
	return err
}

func (s *Service) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			states := make(map[string]int)
			for _, st := range s.Agents() {
				states[st.State]++
			}
			ev := log.Info().Str("team", s.cfg.Team.TeamName)
			for name, n := range states {
				ev = ev.Int(name, n)
			}
			ev.Msg("team.Service.heartbeat")
		}
	}
}

func (s *Service) closeAll() error {
	var errs []error
	for _, a := range s.snapshot() {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unum=%d: %w", a.Unum(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) snapshot() []*agent.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*agent.Agent(nil), s.agents...)
}

// Agents returns the status of every launched agent in launch order.
func (s *Service) Agents() []agent.Status {
	list := s.snapshot()
	out := make([]agent.Status, 0, len(list))
	for _, a := range list {
		out = append(out, a.Status())
	}
	return out
}

func (s *Service) Registry() *agent.PeerRegistry {
	return s.registry
}
