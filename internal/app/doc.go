// Package app contains the core application logic. It wires the pipeline
// loader, graph, module registry, engine and run history together, and
// serves the HTTP control surface. It is decoupled from any specific
// entrypoint like a CLI.
package app
