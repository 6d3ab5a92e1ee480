// Package faults defines the typed failures a node handler may raise and the
// classifier that decides how the engine reacts to each of them.
package faults

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// ConfigError reports missing or invalid integration configuration on a
// node. The engine marks the node as errored and skips its subtree while the
// sibling edges keep running.
type ConfigError struct {
	Kind    string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Config builds a ConfigError for a required field that is empty.
func Config(kind, field string) *ConfigError {
	return &ConfigError{Kind: kind, Field: field, Message: "is required"}
}

// ProviderError is returned by adapters when an upstream service rejects a
// request.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrAuthRequired marks faults that need the operator to re-authenticate.
var ErrAuthRequired = errors.New("authentication required")

// Class is the engine's reaction to a handler fault.
type Class int

const (
	// ClassHandler aborts the current root traversal.
	ClassHandler Class = iota
	// ClassConfig skips the node's subtree and continues its siblings.
	ClassConfig
	// ClassAuth aborts the current root and surfaces an authentication signal.
	ClassAuth
)

func (c Class) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassAuth:
		return "auth"
	default:
		return "handler"
	}
}

// authMarkers match whole words, so ids and paths that only contain "403"
// are not mistaken for auth failures.
var authMarkers = regexp.MustCompile(`(?i)\b(?:403\b|forbidden\b|permission|unauthorized|unauthenticated)`)

// Classify maps a handler fault to the engine's reaction.
func Classify(err error) Class {
	if err == nil {
		return ClassHandler
	}
	if errors.Is(err, ErrAuthRequired) {
		return ClassAuth
	}
	var pe *ProviderError
	if errors.As(err, &pe) && (pe.Status == http.StatusUnauthorized || pe.Status == http.StatusForbidden) {
		return ClassAuth
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ClassConfig
	}
	if authMarkers.MatchString(err.Error()) {
		return ClassAuth
	}
	return ClassHandler
}
