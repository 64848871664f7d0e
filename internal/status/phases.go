package status

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/logging"
)

// Phase is a step in machine bring-up.
type Phase string

const (
	PhaseNotCreated         Phase = "NotCreated"
	PhaseDiskImaged         Phase = "DiskImaged"
	PhaseBootMediaAttached  Phase = "BootMediaAttached"
	PhaseInstalled          Phase = "Installed"
	PhaseAwaitingFirstBoot  Phase = "AwaitingFirstBoot"
	PhaseBootMediaDetaching Phase = "BootMediaDetaching"
	PhaseRebooted           Phase = "Rebooted"
	PhaseConfigurablySetUp  Phase = "ConfigurablySetUp"
	PhaseReady              Phase = "Ready"
)

// Phases returns every phase in bring-up order.
func Phases() []Phase {
	return []Phase{
		PhaseNotCreated,
		PhaseDiskImaged,
		PhaseBootMediaAttached,
		PhaseInstalled,
		PhaseAwaitingFirstBoot,
		PhaseBootMediaDetaching,
		PhaseRebooted,
		PhaseConfigurablySetUp,
		PhaseReady,
	}
}

func (p Phase) index() int {
	for i, q := range Phases() {
		if q == p {
			return i
		}
	}
	return -1
}

// Next returns the phase after p, and false when p is Ready or unknown.
func (p Phase) Next() (Phase, bool) {
	i := p.index()
	if i < 0 || i == len(Phases())-1 {
		return "", false
	}
	return Phases()[i+1], true
}

// IsTerminal reports whether p is the final phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseReady
}

// Transition records a phase change.
type Transition struct {
	From Phase
	To   Phase
	At   time.Time
}

// Tracker follows one machine through bring-up.
type Tracker struct {
	machine string
	current Phase
	history []Transition
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewTracker starts tracking machine at PhaseNotCreated.
func NewTracker(machine string, logger *zap.SugaredLogger) *Tracker {
	return &Tracker{
		machine: machine,
		current: PhaseNotCreated,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

// Current returns the current phase.
func (t *Tracker) Current() Phase {
	return t.current
}

// History returns the transitions made so far, oldest first.
func (t *Tracker) History() []Transition {
	return append([]Transition(nil), t.history...)
}

// Transition moves to next. Only the phase immediately after the current
// one is accepted; the phase is unchanged on error.
func (t *Tracker) Transition(next Phase) error {
	want, ok := t.current.Next()
	if !ok {
		return fmt.Errorf("machine %s: no transition out of phase %s", t.machine, t.current)
	}
	if next != want {
		return fmt.Errorf("machine %s: cannot transition from %s to %s (expected %s)", t.machine, t.current, next, want)
	}

	t.history = append(t.history, Transition{From: t.current, To: next, At: t.now()})
	t.logger.Infow("machine phase changed", "machine", t.machine, "from", t.current, "to", next)
	t.current = next
	return nil
}
