package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Wire messages. The client sends requests, the server answers each with
// exactly one reply on the same line oriented connection.
type request struct {
	Type  string `json:"type"` // "next" or "done"
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

type reply struct {
	Type   string  `json:"type"` // "action", "empty" or "ok"
	Action *Action `json:"action,omitempty"`
}

// Server serves the action queue to the host client over a unix socket.
type Server struct {
	queue *Queue

	mu       sync.Mutex
	listener net.Listener
	stopped  bool

	// ActionErrors receives client side action failures. Buffered so a
	// failing client never blocks on an adaptor that stopped listening.
	ActionErrors chan error
}

func NewServer(queue *Queue) *Server {
	return &Server{
		queue:        queue,
		ActionErrors: make(chan error, 16),
	}
}

// Listen binds the unix socket at socketPath, replacing a stale socket left
// behind by a dead server.
func (s *Server) Listen(socketPath string) error {
	if err := os.MkdirAll(path.Dir(socketPath), 0700); err != nil {
		return errors.Wrap(err, "creating socket directory")
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		if l = replaceDeadSocket(socketPath, err); l == nil {
			return errors.Wrapf(err, "listening on %s", socketPath)
		}
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

// Serve accepts client connections until Stop is called. Each connection is
// handled on its own goroutine; in practice there is a single client.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("server is not listening")
	}
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			return errors.Wrap(err, "accepting client connection")
		}
		go s.handle(conn)
	}
}

// Addr returns the socket path the server is bound to.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and the ActionErrors channel, so readers ranging
// over it terminate. In flight connections see EOF. Safe to call twice.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.listener != nil {
		s.listener.Close()
	}
	close(s.ActionErrors)
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Dropping malformed client request")
			return
		}
		if err := enc.Encode(s.respond(req)); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Failed writing reply to client")
			return
		}
	}
}

func (s *Server) respond(req request) reply {
	switch req.Type {
	case "next":
		if a, ok := s.queue.Pop(); ok {
			log.WithFields(log.Fields{"action": a.Name, "id": a.ID}).Debug("Handing action to client")
			return reply{Type: "action", Action: &a}
		}
		return reply{Type: "empty"}
	case "done":
		s.queue.Done()
		if req.Error != "" {
			s.reportActionError(errors.Errorf("action %s failed: %s", req.ID, req.Error))
		}
		return reply{Type: "ok"}
	default:
		return reply{Type: "ok"}
	}
}

// reportActionError delivers a client action failure. The mutex makes the
// send mutually exclusive with Stop closing the channel; an error arriving
// after Stop is dropped.
func (s *Server) reportActionError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.ActionErrors <- err:
	default:
	}
}

// replaceDeadSocket handles the common case where an adaptor died but its
// socket file still exists. If connecting is refused the server is gone, so
// the file is removed and the address rebound. Returns nil if the socket is
// live or cannot be reclaimed.
func replaceDeadSocket(socketPath string, err error) net.Listener {
	if !isAddrInUse(err) {
		return nil
	}
	conn, connErr := net.Dial("unix", socketPath)
	if connErr == nil {
		conn.Close()
		return nil
	}
	if !isConnRefused(connErr) {
		return nil
	}
	if os.Remove(socketPath) != nil {
		return nil
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil
	}
	return l
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
