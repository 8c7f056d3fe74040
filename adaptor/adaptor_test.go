package adaptor

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/openjd-adaptors/max-openjd/adaptor/ipc"
	"github.com/openjd-adaptors/max-openjd/process"
)

// fakeHost simulates the host client subprocess: it drains the action queue
// over the real socket protocol and emits render output through the regex
// handler, the way 3ds Max output would arrive.
type fakeHost struct {
	handler process.LineHandler

	mu       sync.Mutex
	running  bool
	exitCode int
	actions  []ipc.Action

	// renderFrames controls whether start_render emits a completion line.
	renderFrames bool
	conn         *ipc.Conn
	done         chan struct{}
}

func (h *fakeHost) Pid() int { return 4242 }

func (h *fakeHost) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *fakeHost) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

func (h *fakeHost) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for h.IsRunning() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

func (h *fakeHost) Terminate(grace time.Duration) {
	h.exit(137)
}

func (h *fakeHost) exit(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	h.exitCode = code
	close(h.done)
}

func (h *fakeHost) seen() []ipc.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ipc.Action{}, h.actions...)
}

// poll drains actions like max_client does, acknowledging each one.
func (h *fakeHost) poll(socket string) {
	conn, err := ipc.Dial(socket, 5*time.Second)
	if err != nil {
		h.exit(1)
		return
	}
	h.conn = conn
	for {
		select {
		case <-h.done:
			return
		default:
		}
		a, ok, err := conn.Next()
		if err != nil {
			return
		}
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		h.mu.Lock()
		h.actions = append(h.actions, a)
		h.mu.Unlock()
		conn.Done(a.ID, "")
		switch a.Name {
		case "start_render":
			if h.renderFrames {
				frame := int(a.Params["frame"].(float64))
				h.handler.HandleLine("[PROGRESS] 50 percent", false)
				h.handler.HandleLine(
					"MaxClient: Finished Rendering Frame "+itoa(frame), false)
			}
		case ipc.ActionClose:
			h.exit(0)
			return
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

type recordedStatus struct {
	mu      sync.Mutex
	updates []int
}

func (s *recordedStatus) UpdateStatus(progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, progress)
}

func (s *recordedStatus) last() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return -1
	}
	return s.updates[len(s.updates)-1]
}

func newTestAdaptor(t *testing.T, init InitData, renderFrames bool) (*Adaptor, *fakeHost, *recordedStatus) {
	t.Helper()
	host := &fakeHost{running: true, renderFrames: renderFrames, done: make(chan struct{})}
	status := &recordedStatus{}
	cfg := Config{
		WorkDir:      t.TempDir(),
		ClientArgv:   []string{"fake-client"},
		Status:       status,
		StartTimeout: 10 * time.Second,
		EndTimeout:   2 * time.Second,
		Launcher: func(cmd process.Command, handler process.LineHandler) (HostProcess, error) {
			host.handler = handler
			go host.poll(cmd.EnvVars[ServerPathEnv])
			return host, nil
		},
	}
	return New(init, cfg), host, status
}

func sceneFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.max")
	if err := os.WriteFile(path, []byte("scene"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testInitData(t *testing.T) InitData {
	return InitData{
		Renderer:         "Default_Scanline_Renderer",
		SceneFile:        sceneFile(t),
		StateSet:         "State01",
		Camera:           "PhysCamera001",
		OutputFilePath:   filepath.Join(t.TempDir(), "out"),
		OutputFileName:   "beauty_###",
		OutputFileFormat: ".png",
	}
}

func TestOnStartQueuesInitActionsInOrder(t *testing.T) {
	a, host, _ := newTestAdaptor(t, testInitData(t), false)
	if err := a.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	defer a.OnCleanup()

	expected := []string{
		"renderer", "scene_file", "state_set", "camera",
		"output_file_path", "output_file_name", "output_file_format",
	}
	seen := host.seen()
	if len(seen) != len(expected) {
		t.Fatalf("Expected %d actions, got %d:\n%s", len(expected), len(seen), spew.Sdump(seen))
	}
	for i, name := range expected {
		if seen[i].Name != name {
			t.Fatalf("Action %d: expected %s, got %s", i, name, seen[i].Name)
		}
	}
}

func TestOnStartFailsOnBadInitData(t *testing.T) {
	a := New(InitData{Renderer: "Default_Scanline_Renderer"}, Config{WorkDir: t.TempDir(), ClientArgv: []string{"x"}})
	if err := a.OnStart(); err == nil {
		t.Fatalf("Expected validation error for missing scene file")
	}
}

func TestOnRunRendersFrame(t *testing.T) {
	a, _, status := newTestAdaptor(t, testInitData(t), true)
	if err := a.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	defer a.OnCleanup()

	frame := 12
	if err := a.OnRun(RunData{Frame: &frame}); err != nil {
		t.Fatalf("OnRun failed: %v", err)
	}
	if got := status.last(); got != 100 {
		t.Fatalf("Expected final progress 100, got %d", got)
	}
}

func TestOnRunBeforeStartFails(t *testing.T) {
	a, _, _ := newTestAdaptor(t, testInitData(t), true)
	frame := 1
	err := a.OnRun(RunData{Frame: &frame})
	if err == nil {
		t.Fatalf("Expected error when Max is not running")
	}
}

func TestOnRunRequiresFrame(t *testing.T) {
	a, _, _ := newTestAdaptor(t, testInitData(t), true)
	if err := a.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	defer a.OnCleanup()
	if err := a.OnRun(RunData{}); err == nil {
		t.Fatalf("Expected error for missing frame")
	}
}

func TestOnRunFailsWhenHostExits(t *testing.T) {
	a, host, _ := newTestAdaptor(t, testInitData(t), false)
	if err := a.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	defer a.OnCleanup()

	go func() {
		time.Sleep(100 * time.Millisecond)
		host.exit(7)
	}()
	frame := 3
	err := a.OnRun(RunData{Frame: &frame})
	if err == nil {
		t.Fatalf("Expected error when host exits mid render")
	}
}

func TestStrictErrorCheckingFailsRun(t *testing.T) {
	init := testInitData(t)
	init.StrictErrorChecking = true
	a, host, _ := newTestAdaptor(t, init, false)
	if err := a.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	defer a.OnCleanup()

	go func() {
		time.Sleep(50 * time.Millisecond)
		host.handler.HandleLine("Error: Missing dlls", false)
	}()
	frame := 3
	if err := a.OnRun(RunData{Frame: &frame}); err == nil {
		t.Fatalf("Expected strict error checking to fail the run")
	}
}

func TestErrorLinesIgnoredWithoutStrictChecking(t *testing.T) {
	a, host, _ := newTestAdaptor(t, testInitData(t), true)
	if err := a.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	defer a.OnCleanup()

	host.handler.HandleLine("Warning: legacy material", false)
	frame := 9
	if err := a.OnRun(RunData{Frame: &frame}); err != nil {
		t.Fatalf("OnRun should ignore warnings without strict checking: %v", err)
	}
}

func TestOnCleanupClosesHost(t *testing.T) {
	a, host, _ := newTestAdaptor(t, testInitData(t), false)
	if err := a.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	a.OnCleanup()
	if host.IsRunning() {
		t.Fatalf("Cleanup should stop the host")
	}
	if host.ExitCode() != 0 {
		t.Fatalf("Host should exit cleanly on close, got %d", host.ExitCode())
	}
	seen := host.seen()
	if len(seen) == 0 || seen[len(seen)-1].Name != ipc.ActionClose {
		t.Fatalf("Expected close as the final action, got %+v", seen)
	}

	// Stopping the server ends the error watcher: the channel closes
	// instead of leaving the goroutine ranging forever.
	select {
	case _, ok := <-a.server.ActionErrors:
		if ok {
			t.Fatalf("Expected ActionErrors to be closed after cleanup")
		}
	case <-time.After(time.Second):
		t.Fatalf("ActionErrors still open after cleanup")
	}
}

func TestOnCancelTerminatesHost(t *testing.T) {
	a, host, _ := newTestAdaptor(t, testInitData(t), false)
	if err := a.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	a.OnCancel()
	if host.IsRunning() {
		t.Fatalf("Cancel should kill the host")
	}
}
