package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"beatvault/model"
)

// SeedFile is the YAML document accepted by `scheduler seed`:
//
//	sources:
//	  - id: lofi-channel
//	    locator: https://www.youtube.com/@someproducer
//	    kind: channel
//	    active: true
type SeedFile struct {
	Sources []model.SourceConfig `yaml:"sources"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) ([]model.SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return f.Sources, nil
}

// Seed adds every source not already registered (by id or locator).
func (s *Scheduler) Seed(ctx context.Context, sources []model.SourceConfig) (added int, err error) {
	for _, src := range sources {
		if _, err := s.AddSource(ctx, src); err != nil {
			if errors.Is(err, ErrSourceExists) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}
