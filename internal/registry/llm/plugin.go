// Package llm defines the language-model callback abstraction used by the
// consolidation pipeline, plus a plugin registry for remote callers
// (mirroring the Register/Select pattern of the store and embed registries).
// Tests and local callers normally construct a Caller directly rather than
// going through the registry.
package llm

import (
	"context"
	"fmt"
)

// Caller invokes a language model with a system prompt and a user transcript
// and returns its raw text response.
type Caller func(ctx context.Context, system, user string) (string, error)

// Loader creates a Caller from the ambient config.
type Loader func(ctx context.Context) (Caller, error)

// Plugin represents an LLM backend.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an LLM backend plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered LLM backend plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named LLM backend plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown llm backend %q; valid: %v", name, Names())
}
