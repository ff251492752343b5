// Package gate implements the safety-confirmation pattern-matcher (spec.md
// §4.7): case-insensitive regex matching against exec-tool shell
// invocations, paired with a pluggable async confirmation service that
// defaults to false on timeout.
package gate

import (
	"context"
	"regexp"
	"time"
)

// Confirmer resolves a confirmation request to true/false. Implementations
// are channel-provided (e.g. "reply yes/no within 30s"); the contract only
// requires it to honor ctx cancellation and default to false on timeout.
type Confirmer interface {
	Confirm(ctx context.Context, toolName string, args map[string]interface{}) bool
}

// ConfirmerFunc adapts a plain function to Confirmer.
type ConfirmerFunc func(ctx context.Context, toolName string, args map[string]interface{}) bool

func (f ConfirmerFunc) Confirm(ctx context.Context, toolName string, args map[string]interface{}) bool {
	return f(ctx, toolName, args)
}

// AutoDenyConfirmer always denies; useful as a default when no interactive
// channel is wired (e.g. the scheduler's synthetic messages).
var AutoDenyConfirmer = ConfirmerFunc(func(ctx context.Context, toolName string, args map[string]interface{}) bool {
	return false
})

// Gate matches exec-tool shell invocations against a set of case-insensitive
// patterns, and defers to a Confirmer when one matches.
type Gate struct {
	patterns  []*regexp.Regexp
	confirmer Confirmer
	timeout   time.Duration
}

// New compiles patterns (invalid patterns are skipped) and builds a Gate
// around the given confirmer.
func New(patterns []string, confirmer Confirmer, timeout time.Duration) *Gate {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			compiled = append(compiled, re)
		}
	}
	if confirmer == nil {
		confirmer = AutoDenyConfirmer
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gate{patterns: compiled, confirmer: confirmer, timeout: timeout}
}

// Matches reports whether the tool invocation matches the configured
// pattern set. Current policy only inspects exec-tool "command" arguments
// (spec.md §4.7: "matches only exec-tool shell invocations").
func (g *Gate) Matches(toolName string, args map[string]interface{}) bool {
	if toolName != "exec" {
		return false
	}
	cmd, _ := args["command"].(string)
	if cmd == "" {
		return false
	}
	for _, re := range g.patterns {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}

// Confirm requests confirmation, defaulting to false if the confirmer
// doesn't respond within the gate's timeout.
func (g *Gate) Confirm(ctx context.Context, toolName string, args map[string]interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		result <- g.confirmer.Confirm(ctx, toolName, args)
	}()

	select {
	case ok := <-result:
		return ok
	case <-ctx.Done():
		return false
	}
}
