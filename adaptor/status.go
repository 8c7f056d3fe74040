package adaptor

import (
	"fmt"
	"io"
	"sync"
)

// OpenJDStatus reports progress in the line format the adaptor runtime
// scrapes from the daemon's stdout.
type OpenJDStatus struct {
	mu sync.Mutex
	w  io.Writer
}

func NewOpenJDStatus(w io.Writer) *OpenJDStatus {
	return &OpenJDStatus{w: w}
}

func (s *OpenJDStatus) UpdateStatus(progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "openjd_progress: %d\n", progress)
	if message != "" {
		fmt.Fprintf(s.w, "openjd_status: %s\n", message)
	}
}
