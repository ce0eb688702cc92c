// Package config bootstraps a DB from a declarative YAML description of
// its collections.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	vecdb "github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
)

// Collection describes one collection to create.
type Collection struct {
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`

	// Metric is one of cosine, euclidean (alias l2) or dot.
	// Defaults to cosine.
	Metric string `yaml:"metric"`

	// Index is hnsw (default) or flat.
	Index string `yaml:"index"`

	// HNSW tuning; zero values use the built-in defaults.
	M              int `yaml:"m"`
	M0             int `yaml:"m0"`
	EFConstruction int `yaml:"ef_construction"`
	EFSearch       int `yaml:"ef_search"`

	RandomSeed *int64 `yaml:"random_seed"`
}

// Config is the root of the YAML document.
type Config struct {
	Collections []Collection `yaml:"collections"`
}

// Load parses a YAML config from r.
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// LoadFile parses a YAML config file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// CollectionConfig translates the YAML shape into a vecdb.CollectionConfig.
func (c Collection) CollectionConfig() (vecdb.CollectionConfig, error) {
	metric := distance.MetricCosine
	if c.Metric != "" {
		m, err := distance.ParseMetric(c.Metric)
		if err != nil {
			return vecdb.CollectionConfig{}, fmt.Errorf("collection %q: %w", c.Name, err)
		}
		metric = m
	}

	kind := index.KindHNSW
	switch c.Index {
	case "", string(index.KindHNSW):
	case string(index.KindFlat):
		kind = index.KindFlat
	default:
		return vecdb.CollectionConfig{}, fmt.Errorf("collection %q: unknown index %q", c.Name, c.Index)
	}

	return vecdb.CollectionConfig{
		Name:           c.Name,
		Dimension:      c.Dimension,
		Metric:         metric,
		Kind:           kind,
		M:              c.M,
		M0:             c.M0,
		EFConstruction: c.EFConstruction,
		EFSearch:       c.EFSearch,
		RandomSeed:     c.RandomSeed,
	}, nil
}

// Apply creates every configured collection on the DB. Collections that
// already exist are left untouched.
func (c *Config) Apply(ctx context.Context, db *vecdb.DB) error {
	for _, cc := range c.Collections {
		cfg, err := cc.CollectionConfig()
		if err != nil {
			return err
		}
		if _, err := db.CreateCollection(ctx, cfg); err != nil {
			if errors.Is(err, vecdb.ErrCollectionExists) {
				continue
			}
			return fmt.Errorf("collection %q: %w", cc.Name, err)
		}
	}
	return nil
}
