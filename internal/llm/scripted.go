package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/legalease/internal/apperr"
)

// Prompt is one recorded Generate call.
type Prompt struct {
	System string
	User   string
}

type scripted struct {
	text string
	err  error
}

// ScriptedModel is a deterministic Model for tests and offline runs. It
// replays queued responses in order and falls back to Respond when the queue
// is empty.
type ScriptedModel struct {
	// Respond answers calls once the queue is exhausted. When nil an exhausted
	// script fails with apperr.KindModelUnavailable.
	Respond func(system, user string) (string, error)
	// Gate, when non-nil, holds every call until it is closed or the call's
	// context ends.
	Gate chan struct{}

	mu      sync.Mutex
	queue   []scripted
	prompts []Prompt
	calls   atomic.Int64
}

// NewScriptedModel returns a model that answers with responses in order.
func NewScriptedModel(responses ...string) *ScriptedModel {
	m := &ScriptedModel{}
	for _, r := range responses {
		m.Enqueue(r, nil)
	}
	return m
}

// Enqueue appends a response, or a failure when err is non-nil.
func (m *ScriptedModel) Enqueue(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{text: text, err: err})
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, system, user string) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.prompts = append(m.prompts, Prompt{System: system, User: user})
	m.mu.Unlock()

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return "", apperr.New(apperr.KindModelUnavailable, "llm.Generate", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return "", apperr.New(apperr.KindModelUnavailable, "llm.Generate", err)
	}

	m.mu.Lock()
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return next.text, next.err
	}
	m.mu.Unlock()
	if m.Respond != nil {
		return m.Respond(system, user)
	}
	return "", apperr.New(apperr.KindModelUnavailable, "llm.Generate", errors.New("script exhausted"))
}

// Calls returns how many times Generate was called.
func (m *ScriptedModel) Calls() int {
	return int(m.calls.Load())
}

// Prompts returns the recorded prompts in call order.
func (m *ScriptedModel) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Prompt, len(m.prompts))
	copy(out, m.prompts)
	return out
}
