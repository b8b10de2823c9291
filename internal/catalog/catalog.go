// Package catalog loads the immutable reference data a room plays with:
// dealer vehicles, shop parts, tracks, filler opponents and payouts.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/raceweek/raceweek/internal/race"
	"github.com/raceweek/raceweek/pkg/core"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Shop is a part vendor. Always-open shops ignore the unlock year.
type Shop struct {
	Brand      string `yaml:"brand" json:"brand"`
	UnlockYear int    `yaml:"unlockYear" json:"unlockYear"`
	Always     bool   `yaml:"always,omitempty" json:"always,omitempty"`
}

// RewardRow is the payout table for one field size.
type RewardRow struct {
	Participants int           `yaml:"participants"`
	Places       []core.Reward `yaml:"places"`
}

// Catalog is the reference data. It is read-only after loading.
type Catalog struct {
	Vehicles []core.Vehicle `yaml:"vehicles"`
	Parts    []core.Part    `yaml:"parts"`
	Shops    []Shop         `yaml:"shops"`
	Tracks   []core.Track   `yaml:"tracks"`
	Filler   []core.Vehicle `yaml:"filler"`
	Rewards  []RewardRow    `yaml:"rewards"`

	vehicles map[string]core.Vehicle
	parts    map[string]core.Part
	shops    map[string]Shop
	tracks   map[string]core.Track
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default is invalid: %v", err))
	}
	return c
}

// LoadOrDefault loads path, or the built-in catalog when path is empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes and indexes a catalog.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog yaml: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.vehicles = make(map[string]core.Vehicle, len(c.Vehicles))
	c.parts = make(map[string]core.Part, len(c.Parts))
	c.shops = make(map[string]Shop, len(c.Shops))
	c.tracks = make(map[string]core.Track, len(c.Tracks))

	var errs []error
	for _, v := range c.Vehicles {
		if v.ID == "" {
			errs = append(errs, fmt.Errorf("vehicle %q: missing id", v.Name))
			continue
		}
		if _, dup := c.vehicles[v.ID]; dup {
			errs = append(errs, fmt.Errorf("vehicle %s: duplicate id", v.ID))
		}
		c.vehicles[v.ID] = v
	}
	for _, s := range c.Shops {
		c.shops[s.Brand] = s
	}
	for _, p := range c.Parts {
		if _, dup := c.parts[p.ID]; dup {
			errs = append(errs, fmt.Errorf("part %s: duplicate id", p.ID))
		}
		if _, ok := c.shops[p.Brand]; !ok {
			errs = append(errs, fmt.Errorf("part %s: unknown shop %q", p.ID, p.Brand))
		}
		c.parts[p.ID] = p
	}
	for _, t := range c.Tracks {
		if err := validateTrack(t); err != nil {
			errs = append(errs, err)
		}
		c.tracks[t.ID] = t
	}
	return errors.Join(errs...)
}

func validateTrack(t core.Track) error {
	if t.WeatherSensitivity < 0 || t.WeatherSensitivity > 1 {
		return fmt.Errorf("track %s: weather sensitivity %v outside [0,1]", t.ID, t.WeatherSensitivity)
	}
	for _, st := range core.StatTypes {
		if t.Weights.Get(st) < 0 {
			return fmt.Errorf("track %s: negative %s weight", t.ID, st)
		}
	}
	return nil
}

// Vehicle returns a dealer vehicle by ID.
func (c *Catalog) Vehicle(id string) (core.Vehicle, bool) {
	v, ok := c.vehicles[id]
	return v.Clone(), ok
}

// Part returns a part by ID.
func (c *Catalog) Part(id string) (core.Part, bool) {
	p, ok := c.parts[id]
	return p, ok
}

// Track returns a track by ID.
func (c *Catalog) Track(id string) (core.Track, bool) {
	t, ok := c.tracks[id]
	return t, ok
}

// Shop returns a shop by brand.
func (c *Catalog) Shop(brand string) (Shop, bool) {
	s, ok := c.shops[brand]
	return s, ok
}

// ShopUnlocked reports whether the brand sells parts in the given year.
func (c *Catalog) ShopUnlocked(brand string, year int) bool {
	s, ok := c.shops[brand]
	if !ok {
		return false
	}
	return s.Always || s.UnlockYear <= year
}

// UnlockedShops lists shops open in year, in catalog order.
func (c *Catalog) UnlockedShops(year int) []Shop {
	var out []Shop
	for _, s := range c.Shops {
		if s.Always || s.UnlockYear <= year {
			out = append(out, s)
		}
	}
	return out
}

// DealerVehicles lists vehicles available at dealers in year.
func (c *Catalog) DealerVehicles(year int) []core.Vehicle {
	var out []core.Vehicle
	for _, v := range c.Vehicles {
		if v.Year <= year {
			out = append(out, v.Clone())
		}
	}
	return out
}

// Starters picks the n cheapest vehicles available in year, preferring one
// per dealer and filling from the remaining pool when dealers run out.
// Returned vehicles are catalog copies; callers assign garage IDs.
func (c *Catalog) Starters(year, n int) []core.Vehicle {
	pool := make([]core.Vehicle, 0, len(c.Vehicles))
	for _, v := range c.Vehicles {
		if v.Year > 0 && v.Year <= year {
			pool = append(pool, v)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Price < pool[j].Price })

	picked := make([]core.Vehicle, 0, n)
	taken := map[string]bool{}
	dealers := map[string]bool{}
	for _, v := range pool {
		if len(picked) >= n {
			break
		}
		if dealers[v.Dealer] {
			continue
		}
		dealers[v.Dealer] = true
		taken[v.ID] = true
		picked = append(picked, v.Clone())
	}
	for _, v := range pool {
		if len(picked) >= n {
			break
		}
		if !taken[v.ID] {
			taken[v.ID] = true
			picked = append(picked, v.Clone())
		}
	}
	return picked
}

// RewardTable returns the payout table, falling back to the tiered defaults
// for field sizes the catalog does not list.
func (c *Catalog) RewardTable() race.RewardTable {
	if len(c.Rewards) == 0 {
		return race.TieredRewards{}
	}
	byN := make(map[int][]core.Reward, len(c.Rewards))
	for _, r := range c.Rewards {
		byN[r.Participants] = r.Places
	}
	return race.ScheduledRewards{ByParticipants: byN, Fallback: race.TieredRewards{}}
}
