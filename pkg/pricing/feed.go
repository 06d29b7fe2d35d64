package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// feedFile is the on-disk shape of the dynamic pricing feed.
type feedFile struct {
	Entries []Entry `yaml:"entries"`
}

// LoadFeed reads and validates the dynamic pricing feed at path.
func LoadFeed(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing feed %q: %w", path, err)
	}

	var feed feedFile
	if err := yaml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse pricing feed %q: %w", path, err)
	}

	for i, e := range feed.Entries {
		if e.Provider == "" || e.Model == "" {
			return nil, fmt.Errorf("pricing feed entry %d: provider and model are required", i)
		}
		if e.Unit != "" && !e.Unit.Valid() {
			return nil, fmt.Errorf("pricing feed entry %d: unknown unit %q", i, e.Unit)
		}
		if e.InputRate < 0 || e.OutputRate < 0 {
			return nil, fmt.Errorf("pricing feed entry %d: rates must be >= 0", i)
		}
		if e.Unit == "" {
			feed.Entries[i].Unit = UnitPer1K
		}
	}

	return feed.Entries, nil
}
