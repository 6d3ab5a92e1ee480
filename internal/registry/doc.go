// Package registry maps node kinds to the Go handlers that dispatch them.
//
// Capability modules (text generation, storage, messaging, display) register
// themselves through the Module interface. The engine looks handlers up by
// node kind; entry kinds and the control-flow primitives never go through
// the registry.
package registry
