// Package scheduler runs named callbacks on a fixed period.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type TaskFunc func(ctx context.Context) error

type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRunAt time.Time     `json:"last_run_at,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	entry    cron.EntryID

	mu        sync.Mutex
	runs      int64
	failures  int64
	lastRunAt time.Time
	lastError string
}

// Driver is a periodic task runner. A failing or panicking task is logged and
// stays scheduled; a tick that finds the previous run still busy is skipped.
type Driver struct {
	mu     sync.Mutex
	log    *logger.Logger
	cron   *cron.Cron
	tasks  map[string]*task
	ctx    context.Context
	cancel context.CancelFunc
}

func New(baseLog *logger.Logger) *Driver {
	log := baseLog.With("component", "Scheduler")
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		log:    log,
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		tasks:  map[string]*task{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddTask registers fn to run every interval. Intervals are rounded up to
// whole seconds, the resolution of the underlying cron.
func (d *Driver) AddTask(name string, fn TaskFunc, interval time.Duration) error {
	if name == "" || fn == nil {
		return fmt.Errorf("scheduler: task needs a name and a function")
	}
	interval = roundUpToSecond(interval)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tasks[name]; exists {
		return fmt.Errorf("scheduler: task %q already registered", name)
	}
	t := &task{name: name, interval: interval, fn: fn}
	t.entry = d.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { d.run(t) }))
	d.tasks[name] = t
	d.log.Info("Registered task", "task", name, "interval", interval.String())
	return nil
}

// RemoveTask unregisters a task. Unknown names are ignored.
func (d *Driver) RemoveTask(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tasks[name]; ok {
		d.cron.Remove(t.entry)
		delete(d.tasks, name)
	}
}

// RunNow executes a task synchronously, outside its schedule.
func (d *Driver) RunNow(name string) error {
	d.mu.Lock()
	t, ok := d.tasks[name]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown task %q", name)
	}
	return d.run(t)
}

func (d *Driver) Start() {
	d.cron.Start()
	d.log.Info("Scheduler started", "tasks", len(d.Tasks()))
}

// Stop halts scheduling, cancels the task context and waits for running
// tasks until ctx expires.
func (d *Driver) Stop(ctx context.Context) error {
	done := d.cron.Stop()
	d.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) Tasks() []TaskInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TaskInfo, 0, len(d.tasks))
	for _, t := range d.tasks {
		t.mu.Lock()
		out = append(out, TaskInfo{
			Name:      t.name,
			Interval:  t.interval,
			Runs:      t.runs,
			Failures:  t.failures,
			LastRunAt: t.lastRunAt,
			LastError: t.lastError,
		})
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Driver) run(t *task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		t.mu.Lock()
		t.runs++
		t.lastRunAt = start
		if err != nil {
			t.failures++
			t.lastError = err.Error()
		} else {
			t.lastError = ""
		}
		t.mu.Unlock()
		if err != nil {
			d.log.Warn("Task failed", "task", t.name, "error", err, "duration_ms", time.Since(start).Milliseconds())
		}
	}()
	return t.fn(d.ctx)
}

// roundUpToSecond returns d rounded up to a whole second, at least one.
// cron.Every would truncate instead.
func roundUpToSecond(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	if r := d % time.Second; r != 0 {
		d += time.Second - r
	}
	return d
}

// cronLogger adapts our logger to cron.Logger.
type cronLogger struct{ log *logger.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
