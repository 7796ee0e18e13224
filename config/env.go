package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// noDefaultsTag names a struct tag nothing uses, so a parse with it as the
// default tag leaves unset variables alone.
const noDefaultsTag = "envNoDefault"

// ParseEnv loads configuration from environment variables with prefix,
// applying envDefault tags for unset variables.
func ParseEnv(target any, prefix string) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ApplyDefaults sets every field carrying an envDefault tag, ignoring the
// environment.
func ApplyDefaults(target any) error {
	opts := env.Options{Environment: map[string]string{}}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	return nil
}

// OverlayEnv sets fields whose variables are present in the environment and
// leaves the rest untouched.
func OverlayEnv(target any, prefix string) error {
	opts := env.Options{Prefix: prefix, DefaultValueTagName: noDefaultsTag}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// DecodeYAMLFile reads path, expands ${VAR} references strictly and decodes
// the result into target. Unknown keys are rejected.
func DecodeYAMLFile(path string, target any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by the operator
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return DecodeYAML(data, target)
}

// DecodeYAML expands and decodes a YAML document into target.
func DecodeYAML(data []byte, target any) error {
	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
