// Package tools implements the metered creator tools. Runners are pure text
// transforms; quota checks happen before a runner is invoked.
package tools

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrInvalidInput is returned when a runner gets input it cannot use.
var ErrInvalidInput = errors.New("tools: invalid input")

// Request is the input to a tool run.
type Request struct {
	Input    string            `json:"input"`
	Language string            `json:"language,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

// Runner executes one tool.
type Runner interface {
	ID() string
	Run(ctx context.Context, req Request) (any, error)
}

// Registry maps tool IDs to runners.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry builds a registry from runners. Later runners replace earlier ones with the same ID.
func NewRegistry(runners ...Runner) *Registry {
	r := &Registry{runners: make(map[string]Runner, len(runners))}
	for _, runner := range runners {
		if runner == nil {
			continue
		}
		r.runners[runner.ID()] = runner
	}
	return r
}

// DefaultRegistry returns every built-in runner.
func DefaultRegistry() *Registry {
	return NewRegistry(
		TagGenerator{},
		KeywordResearch{},
		DescriptionGenerator{},
		TitleAnalyzer{},
		VideoData{},
	)
}

// Get returns the runner for id.
func (r *Registry) Get(id string) (Runner, bool) {
	if r == nil {
		return nil, false
	}
	runner, ok := r.runners[strings.TrimSpace(id)]
	return runner, ok
}

// IDs lists the registered tool IDs in order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.runners))
	for id := range r.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func requireInput(req Request, maxLen int) (string, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return "", errors.Join(ErrInvalidInput, errors.New("input is required"))
	}
	if maxLen > 0 && len([]rune(input)) > maxLen {
		return "", errors.Join(ErrInvalidInput, errors.New("input is too long"))
	}
	return input, nil
}
