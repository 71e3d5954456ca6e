package override

import (
	"regexp"
	"strings"

	"github.com/sarchlab/circuitid/target"
	"gopkg.in/yaml.v3"
)

// A Connection is one connection block of the simulation configuration. It
// adjusts the synapses of a pathway, either when the network is built
// (Delay 0) or at a later time.
type Connection struct {
	Name             string   `yaml:"Name" validate:"required"`
	Source           string   `yaml:"Source" validate:"required"`
	Destination      string   `yaml:"Destination" validate:"required"`
	Weight           float64  `yaml:"Weight"`
	Delay            float64  `yaml:"Delay" validate:"gte=0"`
	SynapseConfigure string   `yaml:"SynapseConfigure,omitempty"`
	SpontMinis       *float64 `yaml:"SpontMinis,omitempty"`

	// Extra keeps the fields this package does not interpret.
	Extra map[string]any `yaml:",inline"`
}

// UnmarshalYAML decodes a connection block, defaulting Weight to 1.
func (c *Connection) UnmarshalYAML(value *yaml.Node) error {
	type plain Connection

	p := plain{Weight: 1}
	if err := value.Decode(&p); err != nil {
		return err
	}

	*c = Connection(p)

	return nil
}

// SourceSpec returns the parsed source target.
func (c Connection) SourceSpec() target.Spec {
	return target.ParseSpec(c.Source)
}

// DestinationSpec returns the parsed destination target.
func (c Connection) DestinationSpec() target.Spec {
	return target.ParseSpec(c.Destination)
}

// IsDelayed tells if the connection applies after the network is built.
func (c Connection) IsDelayed() bool {
	return c.Delay > 0
}

// SynapseWildcard prefixes the variables set on each synapse.
const SynapseWildcard = "%s"

var configureAssignment = regexp.MustCompile(`(\S+)\s*\*?=\s*(\S+)`)

// ConfigureVars returns the variables assigned by SynapseConfigure, in order.
func (c Connection) ConfigureVars() []string {
	var vars []string
	for _, m := range configureAssignment.FindAllStringSubmatch(c.SynapseConfigure, -1) {
		vars = append(vars, m[1])
	}

	return vars
}

// GlobalVars returns the SynapseConfigure variables that are not set per
// synapse. Those belong to the Conditions block.
func (c Connection) GlobalVars() []string {
	var vars []string
	for _, v := range c.ConfigureVars() {
		if !strings.HasPrefix(v, SynapseWildcard) {
			vars = append(vars, v)
		}
	}

	return vars
}
