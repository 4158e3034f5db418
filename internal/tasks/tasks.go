package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vikasavnish/savepad/internal/services"
)

// Manager handles the execution of scheduled tasks
type Manager struct {
	plans    services.PlanService
	interval time.Duration
	tasks    []Task
}

// Task represents a scheduled task that needs to be executed
type Task interface {
	Start()
	Stop()
}

// NewManager creates a new task manager
func NewManager(plans services.PlanService, interval time.Duration) *Manager {
	return &Manager{
		plans:    plans,
		interval: interval,
		tasks:    make([]Task, 0),
	}
}

// RegisterTask registers a task with the manager
func (m *Manager) RegisterTask(task Task) {
	m.tasks = append(m.tasks, task)
}

// StartScheduledTasks starts all registered tasks
func (m *Manager) StartScheduledTasks() {
	// Register plan expiry task
	m.RegisterTask(NewPlanExpiryTask(m.plans, m.interval))

	// Start all registered tasks
	for _, task := range m.tasks {
		task.Start()
	}

	log.Info().Int("tasks", len(m.tasks)).Msg("started scheduled tasks")
}

// StopAllTasks stops all running tasks
func (m *Manager) StopAllTasks() {
	for _, task := range m.tasks {
		task.Stop()
	}
	log.Info().Msg("stopped scheduled tasks")
}

// PlanExpiryTask marks one-off plans past their expiry as expired
type PlanExpiryTask struct {
	plans    services.PlanService
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewPlanExpiryTask creates a sweeper running every interval (hourly when
// interval is not positive).
func NewPlanExpiryTask(plans services.PlanService, interval time.Duration) *PlanExpiryTask {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PlanExpiryTask{
		plans:    plans,
		interval: interval,
		now:      time.Now,
	}
}

// Start begins the sweep loop. A second call while running is a no-op.
func (t *PlanExpiryTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopChan != nil {
		return
	}

	t.stopChan = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.stopChan, t.done)

	log.Info().Dur("interval", t.interval).Msg("plan expiry task started")
}

// Stop terminates the loop and waits for an in-flight sweep.
func (t *PlanExpiryTask) Stop() {
	t.mu.Lock()
	stop, done := t.stopChan, t.done
	t.stopChan, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	log.Info().Msg("plan expiry task stopped")
}

func (t *PlanExpiryTask) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// Run immediately on start
	t.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			t.Sweep(context.Background())
		case <-stop:
			return
		}
	}
}

// Sweep runs a single expiry pass and returns the number of plans expired.
func (t *PlanExpiryTask) Sweep(ctx context.Context) int64 {
	n, err := t.plans.ExpireDue(ctx, t.now())
	if err != nil {
		log.Error().Err(err).Msg("plan expiry sweep failed")
		return 0
	}
	if n > 0 {
		log.Info().Int64("expired", n).Msg("plans expired")
	}
	return n
}
