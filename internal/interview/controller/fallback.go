package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/mockflow/internal/interview/guard"
)

// ─── Fallback loop ───────────────────────────────────────────────────────────

// Start launches the fallback loop in a background goroutine. It polls every
// poll interval until ctx is cancelled, [Controller.Stop] is called, or the
// interview is finalized. Calling Start more than once has no effect.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop signals the fallback loop to exit and waits until it has. It is safe
// to call multiple times, and returns at once if the loop was never
// started. It must not be called synchronously from the [Terminator], which
// runs on the loop goroutine.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.exited
	}
}

// Done returns a channel closed once the fallback loop has exited. It never
// closes if [Controller.Start] was not called.
func (c *Controller) Done() <-chan struct{} { return c.exited }

// CheckNow runs one fallback evaluation synchronously: apply a pending skip,
// force an overdue transition, or end an overdue closing stage. It reports
// whether the interview has been finalized.
func (c *Controller) CheckNow(ctx context.Context) (finalized bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("controller: fallback check panicked: %v", r)
		}
	}()

	var (
		terminate bool
		termErr   error
	)
	func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state.Finalized {
			finalized = true
			return
		}
		terminate, termErr = c.tickLocked(ctx, c.now())
		finalized = c.state.Finalized
	}()

	// The terminator may call back into the controller or the registry that
	// owns it, so it runs without the lock.
	if terminate {
		c.term.Terminate(c.id, termErr)
	}
	return finalized, nil
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.exited)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log(ctx).Debug("interview: fallback loop started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			finalized, err := c.CheckNow(ctx)
			if err != nil {
				c.log(ctx).Error("interview: fallback check failed", "err", err)
				continue
			}
			if finalized {
				return
			}
		}
	}
}

// tickLocked performs one evaluation. It returns whether the terminator must
// be notified and with which error. Must be called with c.mu held.
func (c *Controller) tickLocked(ctx context.Context, now time.Time) (bool, error) {
	c.checkpointLocked(ctx, now)

	cur := c.currentLocked()
	elapsed := c.state.Elapsed(now)

	if c.stages.IsTerminal(cur.Name) {
		if cur.TimeLimit <= 0 || elapsed < cur.TimeLimit {
			return false, nil
		}
		if c.state.ClosingDelivered {
			c.finalizeLocked(ctx, EndedCompleted)
			return true, nil
		}
		if elapsed >= cur.TimeLimit+c.grace {
			c.finalizeLocked(ctx, EndedClosingTimeout)
			c.log(ctx).Error("interview: closing stage timed out",
				"elapsed", elapsed, "limit", cur.TimeLimit, "grace", c.grace)
			return true, ErrClosingTimeout
		}
		return false, nil
	}

	if !cur.Fallback {
		return false, nil
	}

	if guard.ShouldForceTransition(c.state, cur, now, c.policy) {
		next, ok := c.stages.Next(cur.Name)
		if !ok {
			return false, nil
		}
		reason := fmt.Sprintf("time limit reached after %s in %s", elapsed.Round(time.Second), cur.Label())
		c.transitionLocked(ctx, next, kindForced, reason, now)
		return false, nil
	}

	if !c.warned && guard.ShouldWarn(c.state, cur, now, c.warnAt) {
		c.warned = true
		c.log(ctx).Warn("interview: stage nearing time limit",
			"stage", cur.Name, "elapsed", elapsed, "limit", cur.TimeLimit,
			"asked", c.state.QuestionsInStage(cur.Name), "min_questions", cur.MinQuestions)
	}
	return false, nil
}
