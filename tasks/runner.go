package tasks

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seaverlab/tethys/msgs"
)

// Prepare runs the synchronous lifecycle stages of a task: parameter
// binding, update-parameters, and entity reservation. It is called for
// every task before any task resolves entities or starts its main loop.
func Prepare(t Task, section map[string]string) error {
	b := t.Base()
	b.self = t

	if err := b.params.Load(section); err != nil {
		b.SetEntityState(msgs.HealthFailure, err.Error())
		return fmt.Errorf("task %s: %w", t.Name(), err)
	}

	if err := t.OnUpdateParameters(); err != nil {
		b.SetEntityState(msgs.HealthFailure, err.Error())
		return fmt.Errorf("task %s: %w", t.Name(), err)
	}

	b.eid = b.ctx.Entities.Reserve(t.Name(), t.Name())
	b.client.SetEntity(b.eid)
	t.OnEntityReservation()

	return nil
}

// Resolve runs the entity-resolution stage. All tasks must have completed
// Prepare beforehand, so every reservable label is registered.
func Resolve(t Task) error {
	if err := t.OnEntityResolution(); err != nil {
		t.Base().SetEntityState(msgs.HealthFailure, err.Error())
		return fmt.Errorf("task %s: %w", t.Name(), err)
	}

	return nil
}

// Launch starts the task's own goroutine: resource acquisition with
// restart backoff, initialization, then the main loop. Release runs on
// every exit path.
func Launch(t Task, wg *sync.WaitGroup) {
	wg.Add(1)

	go func() {
		defer wg.Done()
		defer t.OnResourceRelease()

		if !acquire(t) {
			return
		}

		b := t.Base()
		if err := t.OnResourceInitialization(); err != nil {
			b.Err("resource initialization failed: %v", err)
			b.SetEntityState(msgs.HealthFailure, err.Error())
			return
		}

		if b.entityState == msgs.HealthBoot {
			b.SetEntityState(msgs.HealthNormal, "active")
		}

		switch m := t.(type) {
		case Periodic:
			runPeriodic(m)
		case EventDriven:
			m.OnMain()
		default:
			b.Err("task is neither periodic nor event-driven")
		}
	}()
}

// Stop asks the task to stop cooperatively.
func Stop(t Task) {
	t.Base().requestStop()
}

func acquire(t Task) bool {
	b := t.Base()

	for {
		err := t.OnResourceAcquisition()
		if err == nil {
			return true
		}

		var rn *RestartNeeded
		if !errors.As(err, &rn) {
			b.Err("resource acquisition failed: %v", err)
			b.SetEntityState(msgs.HealthFailure, err.Error())
			return false
		}

		b.SetEntityState(msgs.HealthFault, rn.Reason)
		b.War("restarting acquisition in %s: %s", rn.After, rn.Reason)

		select {
		case <-b.stop:
			return false
		case <-time.After(rn.After):
		}
	}
}

// runPeriodic drives a periodic task. The next tick is
// max(scheduled + 1/F, now): an overrun is logged but never compensated
// with a burst of extra ticks.
func runPeriodic(p Periodic) {
	b := p.Base()

	hz := b.frequency
	if hz <= 0 {
		hz = 1
	}
	period := time.Duration(float64(time.Second) / hz)

	next := time.Now()

	for !b.Stopping() {
		p.Tick()

		next = next.Add(period)
		if now := time.Now(); next.Before(now) {
			b.Debug("tick overrun by %s", now.Sub(next))
			next = now
		}

		for {
			remaining := time.Until(next)
			if remaining <= 0 || b.Stopping() {
				break
			}
			b.WaitForMessages(remaining)
		}
	}
}
