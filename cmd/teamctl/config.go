package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/roboime/simlink/internal/config"
	"github.com/roboime/simlink/internal/team"
)

type fileConfig struct {
	TeamConfig         string   `toml:"team_config"`
	StatusListenAddr   string   `toml:"status_listen_addr"`
	CorsOrigins        []string `toml:"cors_origins"`
	FailFast           bool     `toml:"fail_fast"`
	HeartbeatInterval  string   `toml:"heartbeat_interval"`
	ConnectTimeout     string   `toml:"connect_timeout"`
	RetryDelay         string   `toml:"retry_delay"`
	MaxConnectAttempts int      `toml:"max_connect_attempts"`
	ConnectGiveUpAfter string   `toml:"connect_give_up_after"`
	ReadTimeout        string   `toml:"read_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	ReceiveBufferSize  int      `toml:"receive_buffer_size"`
	MaxFrameBytes      int64    `toml:"max_frame_bytes"`
	BarrierYield       string   `toml:"barrier_yield"`
	BarrierMaxAttempts int      `toml:"barrier_max_attempts"`
	WarmupRounds       int      `toml:"warmup_rounds"`
	DrainPeers         bool     `toml:"drain_peers"`
}

const defaultTeamConfigPath = "team.toml"

// loadServiceConfig reads the service file at path and the team parameter
// file it points at, writing team defaults when that file is missing.
func loadServiceConfig(path string) (team.ServiceConfig, error) {
	cfg := team.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return team.ServiceConfig{}, fmt.Errorf("load teamctl config: %w", err)
	}

	teamPath := defaultTeamConfigPath
	if meta.IsDefined("team_config") {
		if v := strings.TrimSpace(raw.TeamConfig); v != "" {
			teamPath = v
		}
	}
	teamCfg, err := config.EnsureTeamConfig(teamPath)
	if err != nil {
		return team.ServiceConfig{}, err
	}
	cfg.Team = teamCfg

	if meta.IsDefined("status_listen_addr") {
		cfg.StatusListenAddr = strings.TrimSpace(raw.StatusListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("fail_fast") {
		cfg.FailFast = raw.FailFast
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.HeartbeatInterval},
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"connect_give_up_after", raw.ConnectGiveUpAfter, &cfg.Session.ConnectGiveUpAfter},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"barrier_yield", raw.BarrierYield, &cfg.Session.BarrierYield},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return team.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("retry_delay") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.RetryDelay))
		if err != nil {
			return team.ServiceConfig{}, fmt.Errorf("parse retry_delay: %w", err)
		}
		cfg.Session.Backoff.InitialDelay = v
		cfg.Session.Backoff.MaxDelay = v
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("receive_buffer_size") {
		cfg.Session.ReceiveBufferSize = raw.ReceiveBufferSize
	}
	if meta.IsDefined("max_frame_bytes") {
		if raw.MaxFrameBytes <= 0 || raw.MaxFrameBytes > 1<<31 {
			return team.ServiceConfig{}, fmt.Errorf("max_frame_bytes out of range: %d", raw.MaxFrameBytes)
		}
		cfg.Session.MaxFrameBytes = uint32(raw.MaxFrameBytes)
	}
	if meta.IsDefined("barrier_max_attempts") {
		cfg.Session.BarrierMaxAttempts = raw.BarrierMaxAttempts
	}
	if meta.IsDefined("warmup_rounds") {
		cfg.Session.WarmupRounds = raw.WarmupRounds
	}
	if meta.IsDefined("drain_peers") {
		cfg.Session.DrainPeers = raw.DrainPeers
	}

	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
