package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AssistantProfile is a locally defined assistant for the direct-call
// backend family: instructions plus the model that answers with them. One
// YAML file per profile; the file name (minus extension) is the id.
type AssistantProfile struct {
	ID           string `yaml:"-"`
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`
	MaxTokens    int    `yaml:"max_tokens,omitempty"`
}

// ProfilesDir returns the profile directory under the config directory.
func ProfilesDir(configDir string) string {
	return filepath.Join(configDir, "assistants")
}

// LoadProfiles reads every *.yaml profile in dir, sorted by id. A missing
// directory is not an error; it just means no profiles are defined.
func LoadProfiles(dir string) ([]AssistantProfile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading profile directory %s: %w", dir, err)
	}

	var profiles []AssistantProfile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading profile %s: %w", name, err)
		}

		var profile AssistantProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parsing profile %s: %w", name, err)
		}

		profile.ID = strings.TrimSuffix(name, ".yaml")
		if profile.Name == "" {
			profile.Name = profile.ID
		}
		profiles = append(profiles, profile)
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}
