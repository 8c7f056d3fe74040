// Package adaptor implements the render session lifecycle behind the
// max-openjd daemon commands. A session starts the host application once,
// feeds it one render action per task over the ipc socket, and keeps the
// process open across tasks (sticky rendering).
package adaptor

import (
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/openjd-adaptors/max-openjd/adaptor/ipc"
	"github.com/openjd-adaptors/max-openjd/process"
)

// ServerPathEnv tells the host client where the action socket lives.
const ServerPathEnv = "MAX_ADAPTOR_SERVER_PATH"

// Session timeouts. Host startup is effectively unbounded because scene
// loads can take hours on large scenes.
const (
	DefaultStartTimeout = 24 * time.Hour
	DefaultEndTimeout   = 30 * time.Second
)

const pollInterval = 100 * time.Millisecond

// HostProcess is the running host application client. *process.Process
// implements it; tests substitute fakes.
type HostProcess interface {
	Pid() int
	IsRunning() bool
	Wait(timeout time.Duration) bool
	ExitCode() int
	Terminate(grace time.Duration)
}

// Launcher starts the host client subprocess.
type Launcher func(cmd process.Command, handler process.LineHandler) (HostProcess, error)

func defaultLauncher(cmd process.Command, handler process.LineHandler) (HostProcess, error) {
	return process.Start(cmd, handler)
}

// StatusReporter receives render progress updates.
type StatusReporter interface {
	UpdateStatus(progress int, message string)
}

// Config carries the session wiring the CLI sets up.
type Config struct {
	// WorkDir holds the session socket. Required.
	WorkDir string
	// ClientArgv launches the host client. Required.
	ClientArgv []string
	// Status receives progress updates. Optional.
	Status StatusReporter
	// Launcher overrides subprocess creation. Tests only.
	Launcher Launcher

	StartTimeout time.Duration
	EndTimeout   time.Duration
}

// Adaptor drives one render session.
type Adaptor struct {
	init  InitData
	cfg   Config
	queue *ipc.Queue

	server *ipc.Server
	host   HostProcess

	registry    metrics.Registry
	renderTimer metrics.Timer
	framesDone  metrics.Counter

	mu        sync.Mutex
	rendering bool
	cleanup   bool
	exc       error
}

// New creates an adaptor for one session.
func New(init InitData, cfg Config) *Adaptor {
	if cfg.Launcher == nil {
		cfg.Launcher = defaultLauncher
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.EndTimeout == 0 {
		cfg.EndTimeout = DefaultEndTimeout
	}
	registry := metrics.NewRegistry()
	return &Adaptor{
		init:        init,
		cfg:         cfg,
		queue:       ipc.NewQueue(),
		registry:    registry,
		renderTimer: metrics.GetOrRegisterTimer("render.frame", registry),
		framesDone:  metrics.GetOrRegisterCounter("render.frames_completed", registry),
	}
}

// SocketPath returns the action socket path for this session.
func (a *Adaptor) SocketPath() string {
	return filepath.Join(a.cfg.WorkDir, "max-adaptor.sock")
}

// OnStart brings up the action server, queues the initialization actions and
// launches the host client, then waits for the host to drain the queue.
func (a *Adaptor) OnStart() error {
	if err := a.init.Validate(); err != nil {
		return errors.Wrap(err, "validating init data")
	}

	a.server = ipc.NewServer(a.queue)
	if err := a.server.Listen(a.SocketPath()); err != nil {
		return err
	}
	go a.server.Serve()
	go a.watchActionErrors()

	a.populateQueue()
	a.updateStatus(0, "Initializing Max")

	handler := NewRegexHandler(a.regexCallbacks())
	host, err := a.cfg.Launcher(process.Command{
		Argv:    a.cfg.ClientArgv,
		EnvVars: map[string]string{ServerPathEnv: a.SocketPath()},
	}, handler)
	if err != nil {
		a.server.Stop()
		return errors.Wrap(err, "launching host client")
	}
	a.host = host

	deadline := time.Now().Add(a.cfg.StartTimeout)
	for !a.queue.Idle() {
		if err := a.exception(); err != nil {
			return err
		}
		if !a.host.IsRunning() {
			return errors.Errorf(
				"Max exited during initialization with exit code %d", a.host.ExitCode())
		}
		if time.Now().After(deadline) {
			return errors.Errorf(
				"Max did not complete initialization actions in %s and failed to start", a.cfg.StartTimeout)
		}
		time.Sleep(pollInterval)
	}
	log.WithFields(log.Fields{"pid": a.host.Pid()}).Info("Max finished initialization")
	return nil
}

// OnRun renders one frame and blocks until the completion line is seen.
func (a *Adaptor) OnRun(run RunData) error {
	if a.host == nil || !a.host.IsRunning() {
		return errors.New("cannot render because Max is not running")
	}
	if err := run.Validate(); err != nil {
		return errors.Wrap(err, "validating run data")
	}

	params := map[string]interface{}{"frame": *run.Frame}
	if run.Camera != "" {
		params["camera"] = run.Camera
	}

	a.setRendering(true)
	started := time.Now()
	a.queue.Enqueue(ipc.NewAction("start_render", params))

	for a.isRendering() {
		if err := a.exception(); err != nil {
			return err
		}
		if !a.host.IsRunning() {
			// The client should still be up waiting for the next task, so an
			// exit here is always an error.
			return errors.Errorf(
				"Max exited early and did not render successfully, please check render logs. Exit code %d",
				a.host.ExitCode())
		}
		time.Sleep(pollInterval)
	}
	if err := a.exception(); err != nil {
		return err
	}
	a.renderTimer.UpdateSince(started)
	a.framesDone.Inc(1)
	log.WithFields(log.Fields{
		"frame":      *run.Frame,
		"durationMs": time.Since(started).Milliseconds(),
	}).Info("Finished rendering frame")
	return nil
}

// OnStop is part of the daemon contract but the session keeps running until
// cleanup tears it down.
func (a *Adaptor) OnStop() error {
	return nil
}

// OnCleanup asks the host to quit, escalating to termination if it hangs,
// then shuts the action server down.
func (a *Adaptor) OnCleanup() {
	a.mu.Lock()
	a.cleanup = true
	a.mu.Unlock()

	if a.host != nil && a.host.IsRunning() {
		a.queue.EnqueueFront(ipc.NewAction(ipc.ActionClose, nil))
		if !a.host.Wait(a.cfg.EndTimeout) {
			log.Error("Max did not shut down gracefully. Terminating.")
			a.host.Terminate(0)
		}
	}
	if a.server != nil {
		a.server.Stop()
	}
	if count := a.renderTimer.Count(); count > 0 {
		log.WithFields(log.Fields{
			"frames":     a.framesDone.Count(),
			"meanMs":     time.Duration(int64(a.renderTimer.Mean())).Milliseconds(),
			"maxMs":      time.Duration(a.renderTimer.Max()).Milliseconds(),
			"totalTasks": count,
		}).Info("Render session statistics")
	}
}

// OnCancel kills the host immediately. The client has no graceful cancel.
func (a *Adaptor) OnCancel() {
	log.Info("CANCEL REQUESTED")
	if a.host == nil || !a.host.IsRunning() {
		log.Info("Nothing to cancel because Max is not running")
		return
	}
	a.host.Terminate(0)
}

// populateQueue enqueues the initialization actions. The renderer must be
// first so the client installs the right handler; the scene must be open and
// the state set active before any other setting lands.
func (a *Adaptor) populateQueue() {
	a.queue.Enqueue(ipc.NewAction("renderer", map[string]interface{}{"renderer": a.init.Renderer}))
	a.queue.Enqueue(ipc.NewAction("scene_file", map[string]interface{}{"scene_file": a.init.SceneFile}))
	if a.init.StateSet != "" {
		a.queue.Enqueue(ipc.NewAction("state_set", map[string]interface{}{"state_set": a.init.StateSet}))
	}
	if a.init.Camera != "" {
		a.queue.Enqueue(ipc.NewAction("camera", map[string]interface{}{"camera": a.init.Camera}))
	}
	if a.init.OutputFilePath != "" {
		a.queue.Enqueue(ipc.NewAction("output_file_path", map[string]interface{}{"output_file_path": a.init.OutputFilePath}))
	}
	if a.init.OutputFileName != "" {
		a.queue.Enqueue(ipc.NewAction("output_file_name", map[string]interface{}{"output_file_name": a.init.OutputFileName}))
	}
	if a.init.OutputFileFormat != "" {
		a.queue.Enqueue(ipc.NewAction("output_file_format", map[string]interface{}{"output_file_format": a.init.OutputFileFormat}))
	}
	if a.init.ImageWidth > 0 {
		a.queue.Enqueue(ipc.NewAction("image_width", map[string]interface{}{"image_width": a.init.ImageWidth}))
	}
	if a.init.ImageHeight > 0 {
		a.queue.Enqueue(ipc.NewAction("image_height", map[string]interface{}{"image_height": a.init.ImageHeight}))
	}
}

func (a *Adaptor) watchActionErrors() {
	for err := range a.server.ActionErrors {
		a.setException(err)
	}
}

func (a *Adaptor) handleComplete(match []string) {
	a.setRendering(false)
	a.updateStatus(100, "")
}

func (a *Adaptor) handleProgress(match []string) {
	if progress, err := strconv.Atoi(match[1]); err == nil {
		a.updateStatus(progress, "")
	}
}

func (a *Adaptor) handleError(match []string) {
	a.setException(errors.Errorf("Max encountered an error: %s", match[0]))
}

func (a *Adaptor) updateStatus(progress int, message string) {
	if a.cfg.Status != nil {
		a.cfg.Status.UpdateStatus(progress, message)
	}
}

func (a *Adaptor) setRendering(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rendering = v
}

func (a *Adaptor) isRendering() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rendering
}

// setException records the first error seen. During cleanup errors are
// logged instead so teardown can finish.
func (a *Adaptor) setException(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cleanup {
		log.WithFields(log.Fields{"error": err}).Error("Error during cleanup")
		return
	}
	if a.exc == nil {
		a.exc = err
	}
}

func (a *Adaptor) exception() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exc
}
