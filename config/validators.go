package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sarchlab/circuitid/configerr"
	"github.com/sarchlab/circuitid/target"
)

// A Validator checks one aspect of a configuration. It may normalize the
// settings it owns, so validators run in a fixed order.
type Validator interface {
	Name() string
	Validate(c *SimConfig) error
}

type validatorFunc struct {
	name string
	fn   func(c *SimConfig) error
}

func (v validatorFunc) Name() string { return v.name }

func (v validatorFunc) Validate(c *SimConfig) error { return v.fn(c) }

// NewValidator wraps a function as a Validator.
func NewValidator(name string, fn func(c *SimConfig) error) Validator {
	return validatorFunc{name: name, fn: fn}
}

// DefaultValidators returns the validators of a simulation configuration in
// the order they must run.
func DefaultValidators() []Validator {
	return []Validator{
		NewValidator("schema", checkSchema),
		NewValidator("connection names", checkConnectionNames),
		NewValidator("connection targets", checkConnectionTargets),
		NewValidator("node sets", checkNodeSets),
		NewValidator("output", checkOutput),
		NewValidator("save", checkSave),
		NewValidator("restore", checkRestore),
	}
}

// Validate runs the validators in order and stops at the first failure.
func Validate(c *SimConfig, validators []Validator) error {
	for _, v := range validators {
		if err := v.Validate(c); err != nil {
			return err
		}
	}

	return nil
}

var schema = validator.New(validator.WithRequiredStructEnabled())

func checkSchema(c *SimConfig) error {
	err := schema.Struct(c)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return fmt.Errorf("config: %w", err)
	}

	fields := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}

	return configerr.Wrap(strings.Join(fields, ", "), err,
		"simulation config params are invalid")
}

func checkConnectionNames(c *SimConfig) error {
	seen := make(map[string]bool, len(c.Connections))

	for _, conn := range c.Connections {
		if seen[conn.Name] {
			return configerr.New(conn.Name, "connection name is not unique")
		}

		seen[conn.Name] = true
	}

	return nil
}

func checkConnectionTargets(c *SimConfig) error {
	for _, conn := range c.Connections {
		for _, text := range []string{conn.Source, conn.Destination} {
			if err := target.CheckSpec(text); err != nil {
				return fmt.Errorf("connection %s: %w", conn.Name, err)
			}
		}
	}

	return nil
}

func checkNodeSets(c *SimConfig) error {
	c.CircuitNodeSetsFile = c.resolve(c.CircuitNodeSetsFile)
	c.NodeSetsFile = c.resolve(c.NodeSetsFile)

	for _, path := range []string{c.CircuitNodeSetsFile, c.NodeSetsFile} {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); err != nil {
			return configerr.Wrap(path, err, "node sets file not found")
		}
	}

	return nil
}

func checkOutput(c *SimConfig) error {
	if c.OutputRoot == "" {
		c.OutputRoot = "output"
	}

	c.OutputRoot = c.resolve(c.OutputRoot)

	return nil
}

func checkSave(c *SimConfig) error {
	c.Save = c.resolve(c.Save)
	return nil
}

func checkRestore(c *SimConfig) error {
	if c.Restore == "" {
		return nil
	}

	c.Restore = c.resolve(c.Restore)

	info, err := os.Stat(c.Restore)
	if err != nil {
		return configerr.Wrap(c.Restore, err, "restore directory not found")
	}

	if !info.IsDir() {
		return configerr.New(c.Restore, "restore path is not a directory")
	}

	return nil
}
