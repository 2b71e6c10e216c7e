package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	MaxPlayers    = 11
	AutoRobotType = -1
	MaxRobotType  = 4
)

// TeamConfig is the team launch parameter file.
type TeamConfig struct {
	Host          string       `toml:"host"`
	AgentPort     int          `toml:"agent_port"`
	MonitorPort   int          `toml:"monitor_port"`
	TeamName      string       `toml:"team_name"`
	UniformNumber int          `toml:"uniform_number"`
	RobotType     int          `toml:"robot_type"`
	Players       int          `toml:"players"`
	Formation     [][2]float64 `toml:"formation"`
}

// PlayerConfig holds the connection parameters of one agent.
type PlayerConfig struct {
	Host      string
	Port      int
	Unum      int
	TeamName  string
	RobotType int
}

func DefaultTeamConfig() TeamConfig {
	return TeamConfig{
		Host:          "localhost",
		AgentPort:     3100,
		MonitorPort:   3200,
		TeamName:      "RoboIME",
		UniformNumber: 1,
		RobotType:     AutoRobotType,
		Players:       MaxPlayers,
	}
}

func LoadTeamConfig(path string) (TeamConfig, error) {
	cfg := DefaultTeamConfig()
	if err := loadToml(path, &cfg); err != nil {
		return TeamConfig{}, err
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.TeamName = strings.TrimSpace(cfg.TeamName)
	if err := ValidateTeamConfig(cfg); err != nil {
		return TeamConfig{}, err
	}
	return cfg, nil
}

// EnsureTeamConfig loads path, writing the default template first when the
// file does not exist yet.
func EnsureTeamConfig(path string) (TeamConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteTemplate(path, false); err != nil {
			return TeamConfig{}, err
		}
	}
	return LoadTeamConfig(path)
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateTeamConfig(cfg TeamConfig) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("team config missing host")
	}
	if err := validatePort("agent_port", cfg.AgentPort); err != nil {
		return err
	}
	if err := validatePort("monitor_port", cfg.MonitorPort); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.TeamName) == "" || strings.ContainsAny(cfg.TeamName, "() \t") {
		return fmt.Errorf("team config team_name must be a non-empty token: %q", cfg.TeamName)
	}
	if cfg.UniformNumber < 1 || cfg.UniformNumber > MaxPlayers {
		return fmt.Errorf("team config uniform_number out of range: %d", cfg.UniformNumber)
	}
	if cfg.RobotType < AutoRobotType || cfg.RobotType > MaxRobotType {
		return fmt.Errorf("team config robot_type out of range: %d", cfg.RobotType)
	}
	if cfg.Players < 1 || cfg.UniformNumber+cfg.Players-1 > MaxPlayers {
		return fmt.Errorf("team config players=%d does not fit from uniform_number=%d", cfg.Players, cfg.UniformNumber)
	}
	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("team config %s out of range: %d", name, port)
	}
	return nil
}

// Player returns the connection parameters for uniform number unum.
func (c TeamConfig) Player(unum int) PlayerConfig {
	robotType := c.RobotType
	if robotType == AutoRobotType {
		robotType = RobotTypeForUniform(unum)
	}
	return PlayerConfig{
		Host:      c.Host,
		Port:      c.AgentPort,
		Unum:      unum,
		TeamName:  c.TeamName,
		RobotType: robotType,
	}
}

// Uniforms lists the uniform numbers this config launches, in launch order.
func (c TeamConfig) Uniforms() []int {
	out := make([]int, 0, c.Players)
	for i := 0; i < c.Players; i++ {
		out = append(out, c.UniformNumber+i)
	}
	return out
}

// BeamFor returns the formation position for unum, if one is configured.
func (c TeamConfig) BeamFor(unum int) ([2]float64, bool) {
	if unum < 1 || unum > len(c.Formation) {
		return [2]float64{}, false
	}
	return c.Formation[unum-1], true
}

// RobotTypeForUniform maps a uniform number to the heterogeneous NAO type:
// goalkeeper 0, defenders 1, midfield pivot 2, wings 3, forwards 4.
func RobotTypeForUniform(unum int) int {
	switch {
	case unum <= 1:
		return 0
	case unum <= 4:
		return 1
	case unum == 5:
		return 2
	case unum <= 8:
		return 3
	default:
		return 4
	}
}

func (p PlayerConfig) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p PlayerConfig) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("player config missing host")
	}
	if err := validatePort("port", p.Port); err != nil {
		return err
	}
	if p.Unum < 1 || p.Unum > MaxPlayers {
		return fmt.Errorf("player config unum out of range: %d", p.Unum)
	}
	if strings.TrimSpace(p.TeamName) == "" {
		return fmt.Errorf("player config missing team name")
	}
	if p.RobotType < 0 || p.RobotType > MaxRobotType {
		return fmt.Errorf("player config robot type out of range: %d", p.RobotType)
	}
	return nil
}
