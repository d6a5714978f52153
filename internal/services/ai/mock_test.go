package ai

import (
	"context"
	"strings"
	"sync"
)

type mockProvider struct {
	mu                 sync.Mutex
	CompleteFunc       func(ctx context.Context, messages []Message) (string, error)
	CompleteStreamFunc func(ctx context.Context, messages []Message) (<-chan string, <-chan error)
	calls              [][]Message
}

func (m *mockProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	m.record(messages)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return "", nil
}

func (m *mockProvider) CompleteStream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	m.record(messages)
	if m.CompleteStreamFunc != nil {
		return m.CompleteStreamFunc(ctx, messages)
	}
	return streamOf(nil)
}

func (m *mockProvider) record(messages []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
}

func (m *mockProvider) lastCall() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// streamOf returns a finished stream of chunks followed by err
func streamOf(err error, chunks ...string) (<-chan string, <-chan error) {
	out := make(chan string, len(chunks))
	errs := make(chan error, 1)
	for _, c := range chunks {
		out <- c
	}
	if err != nil {
		errs <- err
	}
	close(out)
	close(errs)
	return out, errs
}

// collect drains an advice stream into one string
func collect(chunks <-chan string, errs <-chan error) (string, error) {
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	return b.String(), <-errs
}
