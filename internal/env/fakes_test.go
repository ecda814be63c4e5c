package env

import (
	"context"
	"errors"
	"sync"

	"github.com/bhandras/gymharness/internal/input"
)

type fakeHandle struct {
	readyAfter int
	ticks      int
	cleanups   int
	screenErr  error
}

func (h *fakeHandle) Ready() bool { return h.readyAfter >= 0 && h.ticks >= h.readyAfter }

func (h *fakeHandle) Tick() error {
	h.ticks++
	return nil
}

func (h *fakeHandle) Screen() (Frame, error) {
	if h.screenErr != nil {
		return Frame{}, h.screenErr
	}
	return Frame{Width: 2, Height: 1, Pix: []uint8{1, 2, 3, 4, 5, 6}}, nil
}

func (h *fakeHandle) Cleanup() error {
	h.cleanups++
	return nil
}

// fakeLauncher hands out handles that become ready after readyAfter ticks.
// A negative readyAfter never becomes ready.
type fakeLauncher struct {
	readyAfter []int
	err        error
	handles    []*fakeHandle
}

func (l *fakeLauncher) Launch(_ context.Context, _ Coordinates, _ int) (Handle, error) {
	if l.err != nil {
		return nil, l.err
	}
	ready := 0
	if n := len(l.handles); n < len(l.readyAfter) {
		ready = l.readyAfter[n]
	}
	h := &fakeHandle{readyAfter: ready}
	l.handles = append(l.handles, h)
	return h, nil
}

type fakeInput struct {
	keys      [][]input.Key
	buttons   [][]input.MouseButton
	moves     [][2]int
	sequences [][]input.Key
	seqErr    error
}

func (f *fakeInput) SetHeldKeys(keys []input.Key) error {
	f.keys = append(f.keys, keys)
	return nil
}

func (f *fakeInput) SetHeldMouseButtons(buttons []input.MouseButton) error {
	f.buttons = append(f.buttons, buttons)
	return nil
}

func (f *fakeInput) MoveMouse(x, y int) error {
	f.moves = append(f.moves, [2]int{x, y})
	return nil
}

func (f *fakeInput) KeySequence(_ context.Context, keys []input.Key) error {
	f.sequences = append(f.sequences, keys)
	return f.seqErr
}

type speedWrite struct {
	multiplier float32
	instance   int
}

type fakeSpeed struct {
	mu     sync.Mutex
	writes []speedWrite
}

func (f *fakeSpeed) SetSpeed(m float32, instance int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, speedWrite{m, instance})
	return nil
}

// fakeInfo advances its tick by step on every OnTick after stallPolls polls
// have been swallowed.
type fakeInfo struct {
	tick       int64
	step       int64
	stallPolls int
	alive      bool
	y          float64
	polls      int
}

func (f *fakeInfo) OnTick() (Info, error) {
	f.polls++
	if f.polls > f.stallPolls {
		f.tick += f.step
	}
	return f.CurrentInfo(), nil
}

func (f *fakeInfo) CurrentInfo() Info {
	return Info{InfoTick: f.tick, InfoIsAlive: f.alive, InfoY: f.y}
}

type fakeReward struct {
	value  float64
	resets int
}

func (r *fakeReward) Update(Info) float64 { return r.value }
func (r *fakeReward) Reset()              { r.resets++ }

type addPolicy struct {
	delta  float64
	resets int
	seen   []StepResult
}

func (p *addPolicy) Reset() { p.resets++ }

func (p *addPolicy) Apply(step StepResult) StepResult {
	p.seen = append(p.seen, step)
	step.Reward += p.delta
	return step
}

type fakeRecorder struct {
	records []StepRecord
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, rec StepRecord) error {
	r.records = append(r.records, rec)
	return r.err
}

type fakeSeeder struct {
	seeds []uint32
	err   error
}

func (s *fakeSeeder) Apply(seed uint32) error {
	s.seeds = append(s.seeds, seed)
	return s.err
}

var errBoom = errors.New("boom")
