package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Template renders the default team config as TOML.
func Template() (string, error) {
	data, err := toml.Marshal(DefaultTeamConfig())
	if err != nil {
		return "", fmt.Errorf("render team template: %w", err)
	}
	return teamTemplateHeader + string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const teamTemplateHeader = `# Team launch parameters.
# robot_type = -1 picks the body type from the uniform number.
# formation is an optional list of [x, y] beam positions indexed by uniform number.
`
