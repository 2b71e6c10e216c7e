package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/roboime/simlink/internal/config"
	"github.com/roboime/simlink/internal/logging"
	"github.com/roboime/simlink/internal/team"
)

func main() {
	configPath := flag.String("config", "cmd/teamctl/config.toml", "teamctl service config path")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := resolveServiceConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "teamctl: %v\n", err)
		os.Exit(1)
	}

	svc := team.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "teamctl: %v\n", err)
		os.Exit(1)
	}
}

// resolveServiceConfig falls back to defaults plus the default team file
// when no service config exists at path.
func resolveServiceConfig(path string) (team.ServiceConfig, error) {
	if _, err := os.Stat(path); err == nil {
		return loadServiceConfig(path)
	}
	cfg := team.DefaultServiceConfig()
	teamCfg, err := config.EnsureTeamConfig(defaultTeamConfigPath)
	if err != nil {
		return team.ServiceConfig{}, err
	}
	cfg.Team = teamCfg
	return cfg, nil
}
