package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout describes the physical slots of the site. Slot ids must be exactly
// 1..N in any order.
type Layout struct {
	Name  string       `yaml:"name"`
	Slots []SlotLayout `yaml:"slots"`
}

type SlotLayout struct {
	ID      int    `yaml:"id"`
	Label   string `yaml:"label"`
	Charger bool   `yaml:"charger"`
}

func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.validate(); err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return &l, nil
}

func (l *Layout) validate() error {
	n := len(l.Slots)
	if n == 0 {
		return fmt.Errorf("no slots defined")
	}
	seen := make(map[int]bool, n)
	for _, s := range l.Slots {
		if s.ID < 1 || s.ID > n {
			return fmt.Errorf("slot id %d outside 1..%d", s.ID, n)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate slot id %d", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Label returns the display label for a slot, falling back to its number.
func (l *Layout) Label(id int) string {
	for _, s := range l.Slots {
		if s.ID == id && s.Label != "" {
			return s.Label
		}
	}
	return fmt.Sprintf("%d", id)
}
