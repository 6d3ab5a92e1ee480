// Package config defines the format-agnostic pipeline model, along with the
// Loader interface for reading pipelines from various sources.
//
// The `config.Pipeline` is the single source of truth for the `graph`
// builder. Concrete loaders, such as the HCL one, are provided in separate
// packages.
package config
