package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadError describes a configuration file that could not be used.
type LoadError struct {
	// File is the path of the file (empty for Parse).
	File string

	// Line is the line of the offending YAML node (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	prefix := e.File
	if prefix == "" {
		prefix = "config"
	}
	if e.Line > 0 {
		prefix += ":" + strconv.Itoa(e.Line)
	}
	if e.Cause != nil {
		return prefix + ": " + e.Message + ": " + e.Cause.Error()
	}
	return prefix + ": " + e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		le := &LoadError{Message: "failed to parse YAML", Cause: err}
		var te *yaml.TypeError
		if !errors.As(err, &te) {
			le.Line = yamlLine(err)
		}
		return nil, le
	}

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// yamlLine extracts the line number from a yaml.v3 syntax error
// ("yaml: line 3: ...").
func yamlLine(err error) int {
	const marker = "yaml: line "
	msg := err.Error()
	if len(msg) <= len(marker) || msg[:len(marker)] != marker {
		return 0
	}
	end := len(marker)
	for end < len(msg) && msg[end] >= '0' && msg[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(msg[len(marker):end])
	return n
}
