// Package seed loads robots, worlds and user links from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/ashureev/robofeed/internal/worldctx"
	"gopkg.in/yaml.v3"
)

// File is the seed document.
type File struct {
	Robots []domain.RobotProfile  `yaml:"robots"`
	Worlds []worldctx.WorldConfig `yaml:"worlds"`
	Links  []domain.UserRobotLink `yaml:"links"`
}

// Repository is where seed data lands.
type Repository interface {
	store.RobotRepository
	store.LinkRepository
}

// Worlds receives world configs.
type Worlds interface {
	SetWorlds(worlds []worldctx.WorldConfig)
}

// Load reads and validates a seed file. A missing file yields an empty seed.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates seed YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode seed yaml: %w", err)
	}

	ids := make(map[string]bool, len(f.Robots))
	names := make(map[string]bool, len(f.Robots))
	for i := range f.Robots {
		r := &f.Robots[i]
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("robot %d: %w", i, err)
		}
		if ids[r.RobotID] {
			return nil, fmt.Errorf("duplicate robot id %q", r.RobotID)
		}
		if names[r.Name] {
			return nil, fmt.Errorf("duplicate robot name %q", r.Name)
		}
		ids[r.RobotID], names[r.Name] = true, true
	}
	for i, l := range f.Links {
		if l.UserID == "" || l.RobotID == "" {
			return nil, fmt.Errorf("link %d: userId and robotId are required", i)
		}
	}
	return &f, nil
}

// Apply upserts robots and links and installs world configs.
func Apply(ctx context.Context, repo Repository, worlds Worlds, f *File) error {
	for i := range f.Robots {
		if err := repo.UpsertRobot(ctx, &f.Robots[i]); err != nil {
			return fmt.Errorf("upsert robot %s: %w", f.Robots[i].RobotID, err)
		}
	}
	for i := range f.Links {
		if err := repo.UpsertLink(ctx, &f.Links[i]); err != nil {
			return fmt.Errorf("upsert link %s/%s: %w", f.Links[i].UserID, f.Links[i].RobotID, err)
		}
	}
	if worlds != nil {
		worlds.SetWorlds(f.Worlds)
	}
	slog.Info("Seed applied", "robots", len(f.Robots), "worlds", len(f.Worlds), "links", len(f.Links))
	return nil
}

// LoadAndApply is Load followed by Apply.
func LoadAndApply(ctx context.Context, path string, repo Repository, worlds Worlds) error {
	f, err := Load(path)
	if err != nil {
		return err
	}
	return Apply(ctx, repo, worlds, f)
}
