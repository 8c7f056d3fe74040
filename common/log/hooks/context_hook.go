// Package hooks carries the logrus hooks shared by the binaries.
package hooks

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// ContextHook tags every entry with the file:line of the log call site.
type ContextHook struct{}

func NewContextHook() ContextHook {
	return ContextHook{}
}

func (ContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (ContextHook) Fire(entry *logrus.Entry) error {
	// Walk past the logrus frames to the caller.
	pcs := make([]uintptr, 16)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" && !strings.Contains(frame.File, "sirupsen/logrus") {
			short := frame.File
			if idx := strings.LastIndex(short, "max-openjd/"); idx >= 0 {
				short = short[idx+len("max-openjd/"):]
			}
			entry.Data["file:line"] = fmt.Sprintf("%s:%d", short, frame.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}
