package framework

import (
	"context"
	"log"
	"runtime"
	"time"

	"github.com/golang/glog"
)

// Loop is a cooperative scheduler running a single task: every
// iteration invokes all controllers in registration order on the
// calling goroutine. Background Runnables (bus readers, watchdog)
// run alongside but never touch controller state.
type Loop struct {
	// Interval is the pause between iterations, 0 only yields.
	Interval time.Duration
	// Watchdog is touched after every iteration when set.
	Watchdog *Watchdog
	// Now overrides the iteration time source.
	Now func() time.Time

	controllers []Controller
	runners     []Runnable
	iteration   uint64
}

type loopIteration struct {
	ctx       context.Context
	time      time.Time
	iteration uint64
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.time }
func (t *loopIteration) Iteration() uint64        { return t.iteration }

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: time.Millisecond}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
func (l *Loop) AddController(ctls ...Controller) *Loop {
	l.controllers = append(l.controllers, ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	runner := NewRunnerWith(subCtx)
	runner.Go(l.runners...)
	if wd := l.Watchdog; wd != nil {
		wd.Touch()
		runner.Go(wd)
	}
	defer func() {
		cancel()
		if err := runner.Wait(); err != nil {
			glog.Warningf("loop runners: %v", err)
		}
	}()

	var tick <-chan time.Time
	if l.Interval > 0 {
		ticker := time.NewTicker(l.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		l.RunOnce(ctx)
		if tick == nil {
			runtime.Gosched()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// RunOnce executes exactly one iteration.
func (l *Loop) RunOnce(ctx context.Context) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	l.iteration++
	iter := &loopIteration{ctx: ctx, time: now(), iteration: l.iteration}
	for _, ctl := range l.controllers {
		if err := ctl.Control(iter); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
	if wd := l.Watchdog; wd != nil {
		wd.Touch()
	}
}
