// Package tasks fixes the task set of the control core: a compile-time list
// of goroutines with an advisory priority order, a drift-free periodic
// release, and a check-in monitor the safety supervisor uses to detect a
// stalled task.
//
// On a single-core MCU goroutines schedule cooperatively, so the discipline
// here is that every task suspends only inside timex.DelayUntil or a bounded
// channel receive. Priorities are advisory ordering for diagnosis; the
// supervisor's short period is what guarantees it observes faults promptly.
package tasks

import (
	"context"
	"sync"

	"fridgecode-go/x/timex"
)

// Priority orders the fixed task set, lowest first.
type Priority uint8

const (
	PriorityDiag Priority = iota
	PriorityControl
	PrioritySampling
	PrioritySafety
)

func (p Priority) String() string {
	switch p {
	case PriorityDiag:
		return "diag"
	case PriorityControl:
		return "control"
	case PrioritySampling:
		return "sampling"
	case PrioritySafety:
		return "safety"
	}
	return "?"
}

// Task is one member of the fixed set.
type Task struct {
	Name     string
	Priority Priority
	Run      func(ctx context.Context)
}

// Go launches the task. There is no dynamic task management: tasks start at
// boot and run until the context ends.
func Go(ctx context.Context, t Task) {
	go t.Run(ctx)
}

// -----------------------------------------------------------------------------
// Periodic release
// -----------------------------------------------------------------------------

// Periodic releases a task at a fixed period without drift: each release
// time is computed from the previous release time, not from when the task
// actually woke. A release that is already in the past when Wait is called
// counts as a deadline miss; the schedule then resynchronizes to now so one
// long overrun is one miss, not a burst of stale releases.
type Periodic struct {
	period timex.Tick
	next   timex.Tick
	missed uint32
}

// NewPeriodic starts a schedule whose first release is one period from now.
func NewPeriodic(periodMs int64) *Periodic {
	p := timex.Tick(periodMs)
	if p <= 0 {
		p = 1
	}
	return &Periodic{period: p, next: timex.Now() + p}
}

// Period returns the release period in ticks.
func (p *Periodic) Period() timex.Tick { return p.period }

// SetPeriod changes the period from the next release on.
func (p *Periodic) SetPeriod(periodMs int64) {
	d := timex.Tick(periodMs)
	if d <= 0 {
		d = 1
	}
	p.next += d - p.period
	p.period = d
}

// Wait suspends until the next release. It returns the release tick and
// false once ctx is done. missed reports whether the release deadline had
// already passed by a full period when the task got here.
func (p *Periodic) Wait(ctx context.Context) (tick timex.Tick, missed bool, ok bool) {
	release := p.next
	if !timex.DelayUntil(ctx, release) {
		return 0, false, false
	}
	now := timex.Now()
	if now >= release+p.period {
		// Overran a whole period: resynchronize instead of replaying
		// every stale release.
		p.missed++
		missed = true
		release = now
	}
	p.next = release + p.period
	return release, missed, true
}

// Missed returns the cumulative deadline-miss count.
func (p *Periodic) Missed() uint32 { return p.missed }

// -----------------------------------------------------------------------------
// Check-in monitor
// -----------------------------------------------------------------------------

// Monitor tracks per-task liveness. Each task beats its CheckIn once per
// cycle; the supervisor asks for tasks whose last beat is older than their
// budget. Registration happens at boot only.
type Monitor struct {
	mu      sync.Mutex
	entries []*CheckIn
}

// CheckIn is one task's liveness slot.
type CheckIn struct {
	name   string
	budget timex.Tick
	mu     sync.Mutex
	last   timex.Tick
}

// Register adds a task with a check-in budget. A task must beat at least
// once per budget or it is reported stale.
func (m *Monitor) Register(name string, budgetMs int64) *CheckIn {
	c := &CheckIn{name: name, budget: timex.Tick(budgetMs), last: timex.Now()}
	m.mu.Lock()
	m.entries = append(m.entries, c)
	m.mu.Unlock()
	return c
}

// Beat records liveness at the current tick.
func (c *CheckIn) Beat() { c.BeatAt(timex.Now()) }

// BeatAt records liveness at an explicit tick.
func (c *CheckIn) BeatAt(t timex.Tick) {
	c.mu.Lock()
	c.last = t
	c.mu.Unlock()
}

// Name returns the registered task name.
func (c *CheckIn) Name() string { return c.name }

// Stale returns the names of tasks whose last beat is older than their
// budget as of now.
func (m *Monitor) Stale(now timex.Tick) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.entries {
		c.mu.Lock()
		last := c.last
		c.mu.Unlock()
		if now-last > c.budget {
			out = append(out, c.name)
		}
	}
	return out
}
