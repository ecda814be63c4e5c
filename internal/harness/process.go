// Package harness launches game processes and exposes them to the session
// controller as env.Handle values.
package harness

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/bhandras/gymharness/internal/env"
	"github.com/bhandras/gymharness/pkg/logger"
)

const (
	// terminateGrace is how long a process group gets after SIGTERM.
	terminateGrace = 2 * time.Second
	// killGrace bounds the wait for exit after SIGKILL.
	killGrace = 2 * time.Second
	// stopPoll is how often stop checks whether the game is gone.
	stopPoll = 50 * time.Millisecond
	// maxLocateAttempts bounds window searches per process.
	maxLocateAttempts = 60
)

// ReadyFile is the file a game writes into its env dir once it reports state.
const ReadyFile = "info"

// Process is a running game attached to a pty.
type Process struct {
	cmd      *exec.Cmd
	ptyFile  *os.File
	instance int
	envDir   string
	// separate means the command only launches the game and may exit.
	separate bool

	coords   env.Coordinates
	width    int
	height   int
	capturer Capturer

	// windowTitle locates the game window, which gives the game's pid even
	// when the game left the launcher's process group.
	windowTitle string
	locator     WindowLocator
	claims      *windowClaims
	winWidth    int
	winHeight   int

	mu       sync.Mutex
	ready    bool
	window   Window
	attempts int
	done    chan struct{}
	waitErr error

	cleanupOnce sync.Once
}

var _ env.Handle = (*Process)(nil)

// start launches the command under a pty. pty.Start puts the child in its own
// session, so its pid is also its process group id.
func (p *Process) start() error {
	ptyFile, err := pty.Start(p.cmd)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", p.cmd.Path, err)
	}
	p.ptyFile = ptyFile
	p.done = make(chan struct{})

	go p.drain()
	go func() {
		err := p.cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	logger.Infof("harness[%d]: started %q (PID: %d)", p.instance,
		p.cmd.String(), p.cmd.Process.Pid)
	return nil
}

// drain forwards the game's terminal output to the debug log. Reading also
// keeps the pty buffer from filling and blocking the game.
func (p *Process) drain() {
	scanner := bufio.NewScanner(p.ptyFile)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if logger.Enabled(logger.LevelDebug) {
			logger.Debugf("harness[%d]: %s", p.instance, scanner.Text())
		}
	}
}

// Running reports whether the launched command has not exited.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Ready implements env.Handle.
func (p *Process) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// GamePID returns the pid owning the located game window, or 0.
func (p *Process) GamePID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window.PID
}

func (p *Process) windowID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window.ID
}

// Tick implements env.Handle. It marks the process ready once the game has
// written its first state file, locates the game window, and reports an
// exited game.
func (p *Process) Tick() error {
	if !p.separate && !p.Running() {
		p.mu.Lock()
		err := p.waitErr
		p.mu.Unlock()
		return fmt.Errorf("process exited: %v", err)
	}
	p.locateWindow()
	if _, err := os.Stat(filepath.Join(p.envDir, ReadyFile)); err != nil {
		return nil
	}
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return nil
}

// locateWindow finds the game window by title and moves it to the instance
// rectangle. Of several matches it takes the one this process started.
func (p *Process) locateWindow() {
	if p.windowTitle == "" || p.locator == nil {
		return
	}
	p.mu.Lock()
	done := p.window.ID != "" || p.attempts >= maxLocateAttempts
	p.attempts++
	p.mu.Unlock()
	if done {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	windows, err := p.locator.Find(ctx, p.windowTitle)
	if err != nil {
		logger.Debugf("harness[%d]: find window %q: %v", p.instance, p.windowTitle, err)
		return
	}
	w, ok := p.pickWindow(windows)
	if !ok || !p.claims.claim(w.ID, p.instance) {
		return
	}
	p.mu.Lock()
	p.window = w
	p.mu.Unlock()
	logger.Infof("harness[%d]: window %s belongs to PID %d", p.instance, w.ID, w.PID)

	if err := p.locator.Place(ctx, w, p.coords.X, p.coords.Y, p.winWidth, p.winHeight); err != nil {
		logger.Warnf("harness[%d]: place window %s: %v", p.instance, w.ID, err)
	}
}

func (p *Process) pickWindow(windows []Window) (Window, bool) {
	pgid := p.cmd.Process.Pid
	var free []Window
	for _, w := range windows {
		if processGroup(w.PID) == pgid || hasEnv(w.PID, "ENV_PREFIX="+p.envDir) {
			return w, true
		}
		if !p.claims.claimedByOther(w.ID, p.instance) {
			free = append(free, w)
		}
	}
	if len(free) == 1 {
		return free[0], true
	}
	return Window{}, false
}

// Screen implements env.Handle.
func (p *Process) Screen() (env.Frame, error) {
	if p.capturer == nil {
		return env.Frame{}, errors.New("no screen capturer configured")
	}
	return p.capturer.Capture(p.coords.X, p.coords.Y, p.width, p.height)
}

// Cleanup implements env.Handle. It terminates the whole process group and
// the located game, escalating to SIGKILL when the game ignores SIGTERM.
func (p *Process) Cleanup() error {
	var err error
	p.cleanupOnce.Do(func() {
		err = p.stop()
	})
	return err
}

func (p *Process) stop() error {
	defer func() {
		if p.ptyFile != nil {
			_ = p.ptyFile.Close()
		}
	}()
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	pid := p.cmd.Process.Pid
	game := p.GamePID()
	if id := p.windowID(); id != "" {
		defer p.claims.release(id)
	}
	if !p.alive(pid, game) {
		return nil
	}
	logger.Infof("harness[%d]: stopping PID %d (game PID %d)", p.instance, pid, game)
	p.signal(pid, game, sigTerm)
	if p.waitGone(pid, game, terminateGrace) {
		return nil
	}

	logger.Warnf("harness[%d]: PID %d ignored SIGTERM, killing", p.instance, pid)
	p.signal(pid, game, sigKill)
	if p.Running() {
		_ = p.cmd.Process.Kill()
	}
	if p.waitGone(pid, game, killGrace) {
		return nil
	}
	return fmt.Errorf("process %d did not exit", pid)
}

// alive reports whether the launcher, anything left in its process group or
// the located game is still running.
func (p *Process) alive(pid, game int) bool {
	return p.Running() || groupAlive(pid) || (game > 0 && processAlive(game))
}

func (p *Process) signal(pid, game int, sig signalType) {
	signalGroup(pid, sig)
	if game > 0 {
		signalProcess(game, sig)
	}
}

func (p *Process) waitGone(pid, game int, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for p.alive(pid, game) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(stopPoll)
	}
	return true
}
