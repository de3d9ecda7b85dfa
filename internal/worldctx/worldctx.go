// Package worldctx supplies world prompts and cached external data for prompts.
package worldctx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// WorldConfig is a shared setting that a group of robots lives in.
type WorldConfig struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	BackgroundPrompt string   `json:"backgroundPrompt" yaml:"backgroundPrompt"`
	WorldviewPrompt  string   `json:"worldviewPrompt" yaml:"worldviewPrompt"`
	RobotIDs         []string `json:"robotIds" yaml:"robotIds"`
}

// NewsItem is one headline.
type NewsItem struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

// Weather is the current weather for a city.
type Weather struct {
	City        string `json:"city"`
	Description string `json:"description"`
	Temperature string `json:"temperature"`
}

// ExternalData is the cached snapshot of outside-world data.
type ExternalData struct {
	News        []NewsItem         `json:"news"`
	HotSearches []string           `json:"hotSearches"`
	Weather     map[string]Weather `json:"weatherMap"`
	Music       []string           `json:"music"`
	Movies      []string           `json:"movies"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Snapshot is the world context relevant to one robot.
type Snapshot struct {
	Worlds      []WorldConfig
	News        []NewsItem
	HotSearches []string
	Weather     *Weather
}

const (
	maxNews        = 3
	maxHotSearches = 5
)

// Provider holds world configs and the external data cache.
// The cache is persisted to a JSON file on every update.
type Provider struct {
	path string

	// writeMu serializes Replace so the file and memory agree.
	writeMu sync.Mutex

	mu     sync.RWMutex
	worlds []WorldConfig
	data   ExternalData
}

// NewProvider loads the cache file at path. A missing file starts empty.
func NewProvider(path string) (*Provider, error) {
	p := &Provider{path: path}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read world cache: %w", err)
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		return nil, fmt.Errorf("decode world cache: %w", err)
	}
	return p, nil
}

// SetWorlds replaces the world configs.
func (p *Provider) SetWorlds(worlds []WorldConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.worlds = slices.Clone(worlds)
}

// Worlds returns the world configs.
func (p *Provider) Worlds() []WorldConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.worlds)
}

// Data returns the external data snapshot.
func (p *Provider) Data() ExternalData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data
}

// Replace swaps the external data and writes it to disk.
func (p *Provider) Replace(data ExternalData) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = time.Now()
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode world cache: %w", err)
	}
	if err := writeFileAtomic(p.path, raw); err != nil {
		return err
	}

	p.mu.Lock()
	p.data = data
	p.mu.Unlock()
	return nil
}

// For returns the context relevant to a robot in location.
func (p *Provider) For(robotID, location string) Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var snap Snapshot
	for _, w := range p.worlds {
		if slices.Contains(w.RobotIDs, robotID) {
			snap.Worlds = append(snap.Worlds, w)
		}
	}
	snap.News = firstN(p.data.News, maxNews)
	snap.HotSearches = firstN(p.data.HotSearches, maxHotSearches)
	if w, ok := p.data.Weather[location]; ok && location != "" {
		snap.Weather = &w
	}
	return snap
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[:n]
	}
	return slices.Clone(s)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create world cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create world cache temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write world cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close world cache: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod world cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace world cache: %w", err)
	}
	return nil
}
