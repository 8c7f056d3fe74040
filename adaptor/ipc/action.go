// Package ipc carries render actions between the adaptor and the client
// running next to the host application. The adaptor owns a FIFO of pending
// actions; the client drains it over a unix domain socket using a small
// newline delimited JSON protocol.
package ipc

import (
	"encoding/json"
	"sync"

	uuid "github.com/nu7hatch/gouuid"
)

// Action names understood by the client. Render handler specific actions
// (start_render, scene_file, ...) are defined by the handlers themselves.
const (
	ActionClose = "close"
)

// An Action is one instruction for the host client: a name plus a flat
// parameter map.
type Action struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// NewAction creates an action with a fresh id.
func NewAction(name string, params map[string]interface{}) Action {
	id := ""
	if u, err := uuid.NewV4(); err == nil {
		id = u.String()
	}
	return Action{ID: id, Name: name, Params: params}
}

func (a Action) String() string {
	b, _ := json.Marshal(a)
	return string(b)
}

// Queue is the FIFO of actions waiting for the client. Close requests jump
// the queue so a shutdown is never stuck behind a render.
type Queue struct {
	mu      sync.Mutex
	actions []Action
	pending int
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends an action to the back of the queue.
func (q *Queue) Enqueue(a Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
}

// EnqueueFront puts an action at the head of the queue.
func (q *Queue) EnqueueFront(a Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append([]Action{a}, q.actions...)
}

// Pop removes and returns the next action. The second return is false when
// the queue is empty. A popped action counts as in flight until Done is
// called for it.
func (q *Queue) Pop() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.actions) == 0 {
		return Action{}, false
	}
	a := q.actions[0]
	q.actions = q.actions[1:]
	q.pending++
	return a, true
}

// Done marks one in flight action as finished.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending > 0 {
		q.pending--
	}
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Idle reports whether the queue is empty and nothing is in flight.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions) == 0 && q.pending == 0
}
