package maxscript

import (
	"strings"
	"sync"
)

// FakeEngine records executed scripts for tests. A response can be scripted
// per substring; unmatched scripts return empty output.
type FakeEngine struct {
	mu        sync.Mutex
	scripts   []string
	responses map[string]string
	errs      map[string]error
	closed    bool
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		responses: map[string]string{},
		errs:      map[string]error{},
	}
}

// Respond makes Execute return output for scripts containing substr.
func (e *FakeEngine) Respond(substr, output string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[substr] = output
}

// Fail makes Execute return err for scripts containing substr.
func (e *FakeEngine) Fail(substr string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[substr] = err
}

func (e *FakeEngine) Execute(script string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts = append(e.scripts, script)
	for substr, err := range e.errs {
		if strings.Contains(script, substr) {
			return "", err
		}
	}
	for substr, out := range e.responses {
		if strings.Contains(script, substr) {
			return out, nil
		}
	}
	return "", nil
}

func (e *FakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Scripts returns every executed script in order.
func (e *FakeEngine) Scripts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.scripts...)
}

// Executed reports whether any executed script contains substr.
func (e *FakeEngine) Executed(substr string) bool {
	for _, s := range e.Scripts() {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// Closed reports whether Close was called.
func (e *FakeEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
