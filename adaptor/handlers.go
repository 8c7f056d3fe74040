package adaptor

import (
	"regexp"
	"sync"
)

// Patterns watched in the host client's output.
var (
	completeRe = regexp.MustCompile(`MaxClient: Finished Rendering Frame [0-9]+`)
	progressRe = regexp.MustCompile(`\[PROGRESS\] ([0-9]+) percent`)
	errorRe    = regexp.MustCompile(`.*Exception:.*|.*Error:.*|.*Warning.*`)
)

// A RegexCallback fires when any of its regexes matches an output line.
type RegexCallback struct {
	Regexes []*regexp.Regexp
	OnMatch func(match []string)
}

// RegexHandler scans subprocess output lines against a list of callbacks.
// Implements process.LineHandler.
type RegexHandler struct {
	mu        sync.Mutex
	callbacks []RegexCallback
}

func NewRegexHandler(callbacks []RegexCallback) *RegexHandler {
	return &RegexHandler{callbacks: callbacks}
}

func (h *RegexHandler) HandleLine(line string, isStderr bool) {
	h.mu.Lock()
	callbacks := h.callbacks
	h.mu.Unlock()
	for _, cb := range callbacks {
		for _, re := range cb.Regexes {
			if m := re.FindStringSubmatch(line); m != nil {
				cb.OnMatch(m)
				break
			}
		}
	}
}

// regexCallbacks builds the callback list for a session. Error and warning
// matching is only installed when strict error checking was requested.
func (a *Adaptor) regexCallbacks() []RegexCallback {
	callbacks := []RegexCallback{
		{Regexes: []*regexp.Regexp{completeRe}, OnMatch: a.handleComplete},
		{Regexes: []*regexp.Regexp{progressRe}, OnMatch: a.handleProgress},
	}
	if a.init.StrictErrorChecking {
		callbacks = append(callbacks, RegexCallback{
			Regexes: []*regexp.Regexp{errorRe},
			OnMatch: a.handleError,
		})
	}
	return callbacks
}
