// Package config loads the simulation configuration and checks it with an
// ordered list of validators.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sarchlab/circuitid/override"
	"gopkg.in/yaml.v3"
)

// PopulationsOffsetFile is the name of the layout file written next to the
// saved model and the output.
const PopulationsOffsetFile = "populations_offset.dat"

// Run holds the run parameters.
type Run struct {
	Duration float64 `yaml:"duration" validate:"gt=0"`
	Dt       float64 `yaml:"dt" validate:"gte=0"`
	BaseSeed int64   `yaml:"base_seed"`
	Celsius  float64 `yaml:"celsius"`

	// ModelBuildingSteps splits the model building in cycles.
	ModelBuildingSteps int `yaml:"model_building_steps" validate:"gte=0"`
}

// A SimConfig is a simulation configuration.
type SimConfig struct {
	Run Run `yaml:"run"`

	CircuitNodeSetsFile string `yaml:"circuit_node_sets_file"`
	NodeSetsFile        string `yaml:"node_sets_file"`
	OutputRoot          string `yaml:"output_root"`
	Save                string `yaml:"save"`
	Restore             string `yaml:"restore"`

	// PopulationAliases maps population names used by connection blocks to
	// the real population names.
	PopulationAliases map[string]string `yaml:"population_aliases"`

	Connections []override.Connection `yaml:"connection_overrides" validate:"dive"`

	// Dir is the directory of the configuration file. Relative paths are
	// taken from there.
	Dir string `yaml:"-"`
}

// Parse decodes a configuration. Unknown keys are errors.
func Parse(r io.Reader) (*SimConfig, error) {
	c := &SimConfig{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}

	return c, nil
}

// Load reads a configuration file. The environment overrides are not
// applied, see ApplyEnv.
func Load(path string) (*SimConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	c.Dir = filepath.Dir(abs)

	return c, nil
}

// BuildPath returns where the model is saved. It defaults to the build
// directory next to the configuration.
func (c *SimConfig) BuildPath() string {
	if c.Save != "" {
		return c.Save
	}

	return filepath.Join(c.Dir, "build")
}

// PopulationsOffsetSavePath returns where the layout is saved for a later
// restore.
func (c *SimConfig) PopulationsOffsetSavePath() string {
	return filepath.Join(c.BuildPath(), PopulationsOffsetFile)
}

// PopulationsOffsetRestorePath returns the layout file of the run being
// restored, or "" when not restoring.
func (c *SimConfig) PopulationsOffsetRestorePath() string {
	if c.Restore == "" {
		return ""
	}

	return filepath.Join(c.Restore, PopulationsOffsetFile)
}

// PopulationsOffsetOutputPath returns the copy of the layout kept with the
// output, for visualization.
func (c *SimConfig) PopulationsOffsetOutputPath() string {
	return filepath.Join(c.OutputRoot, PopulationsOffsetFile)
}

func (c *SimConfig) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(c.Dir, path)
}
