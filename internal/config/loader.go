/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Overlay loading adapted from the syn4pse samples (github.com/ekisa-team/syn4pse,
// internal/config).

package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func overlaySchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to add config schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("schema.json")
	})
	return compiledSchema, schemaErr
}

// ValidateOverlay checks raw YAML against the embedded overlay schema.
func ValidateOverlay(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if raw == nil {
		// empty file
		return nil
	}

	schema, err := overlaySchema()
	if err != nil {
		return err
	}

	if err := schema.Validate(raw); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// applyFile overlays the YAML file at path onto config.
func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := ValidateOverlay(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	clone := *c
	clone.LLM.Stop = append([]string(nil), c.LLM.Stop...)
	if clone.Home.HAToken != "" {
		clone.Home.HAToken = "********"
	}
	return &clone
}

// YAML renders the configuration as the overlay format.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Reloadable is the subset of configuration applied without a restart.
type Reloadable struct {
	LLM          LLMConfig
	HistoryTurns int
	Display      DisplayConfig
}

// Reloadable extracts the hot-reloadable settings.
func (c *Config) Reloadable() Reloadable {
	llm := c.LLM
	llm.Stop = append([]string(nil), c.LLM.Stop...)
	return Reloadable{
		LLM:          llm,
		HistoryTurns: c.Controller.HistoryTurns,
		Display:      c.Display,
	}
}
