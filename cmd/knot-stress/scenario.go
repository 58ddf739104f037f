package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = eris.New("invalid scenario")

// Scenario describes a single stress run.
type Scenario struct {
	Duration time.Duration `yaml:"duration"`
	Entities int           `yaml:"entities"`
	Worlds   int           `yaml:"worlds"`
	Seed     uint64        `yaml:"seed"`

	// number of parents destroyed and respawned per frame
	Churn int `yaml:"churn"`

	// number of children spawned below each new parent
	Children int `yaml:"children"`

	// entities leaving these bounds lose their velocity
	Bounds float64 `yaml:"bounds"`
}

func DefaultScenario() Scenario {
	return Scenario{
		Duration: 10 * time.Second,
		Entities: 10000,
		Worlds:   1,
		Seed:     1,
		Churn:    16,
		Children: 4,
		Bounds:   1000,
	}
}

// LoadScenario reads a yaml scenario on top of the defaults.
func LoadScenario(path string) (Scenario, error) {
	scenario := DefaultScenario()

	buf, err := os.ReadFile(path)
	if err != nil {
		return scenario, eris.Wrapf(err, "read scenario %q", path)
	}

	if err := yaml.Unmarshal(buf, &scenario); err != nil {
		return scenario, eris.Wrapf(err, "parse scenario %q", path)
	}

	return scenario, scenario.Validate()
}

func (s Scenario) Validate() error {
	switch {
	case s.Duration <= 0:
		return eris.Wrapf(ErrInvalidScenario, "duration must be positive, got %s", s.Duration)
	case s.Entities < 0:
		return eris.Wrapf(ErrInvalidScenario, "entities must not be negative, got %d", s.Entities)
	case s.Worlds < 1:
		return eris.Wrapf(ErrInvalidScenario, "need at least one world, got %d", s.Worlds)
	case s.Churn < 0 || s.Children < 0:
		return eris.Wrapf(ErrInvalidScenario, "churn and children must not be negative")
	case s.Bounds <= 0:
		return eris.Wrapf(ErrInvalidScenario, "bounds must be positive, got %f", s.Bounds)
	}

	return nil
}
