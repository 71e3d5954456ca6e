package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// The environment variables that override the configuration.
const (
	EnvOutputRoot   = "CIRCUITID_OUTPUT_ROOT"
	EnvNodeSetsFile = "CIRCUITID_NODE_SETS_FILE"
	EnvRestore      = "CIRCUITID_RESTORE"
)

// ApplyEnv overrides settings from the environment. Values are read from the
// given .env files first and the process environment wins over them. Missing
// .env files are errors.
func (c *SimConfig) ApplyEnv(envFiles ...string) error {
	values := map[string]string{}

	if len(envFiles) > 0 {
		fromFiles, err := godotenv.Read(envFiles...)
		if err != nil {
			return fmt.Errorf("config: reading env files: %w", err)
		}

		values = fromFiles
	}

	for _, key := range []string{EnvOutputRoot, EnvNodeSetsFile, EnvRestore} {
		if v, found := os.LookupEnv(key); found {
			values[key] = v
		}
	}

	targets := map[string]*string{
		EnvOutputRoot:   &c.OutputRoot,
		EnvNodeSetsFile: &c.NodeSetsFile,
		EnvRestore:      &c.Restore,
	}

	for key, field := range targets {
		if v, found := values[key]; found {
			*field = v
		}
	}

	return nil
}
