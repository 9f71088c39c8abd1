package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultSweepSchedule = "@every 1m"
)

// Cleanup periodically evicts idle handles on a cron schedule.
type Cleanup struct {
	manager  *Manager
	idleTTL  time.Duration
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewCleanup creates an idle sweeper. Zero values fall back to the defaults.
func NewCleanup(manager *Manager, idleTTL time.Duration, schedule string) *Cleanup {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &Cleanup{
		manager:  manager,
		idleTTL:  idleTTL,
		schedule: schedule,
	}
}

// Start schedules the sweep.
func (c *Cleanup) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("cleanup is already running")
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(c.schedule, c.sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", c.schedule, err)
	}
	scheduler.Start()

	c.cron = scheduler
	c.running = true

	log.Info().
		Dur("idle_ttl", c.idleTTL).
		Str("schedule", c.schedule).
		Msg("Session cleanup started")

	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (c *Cleanup) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return fmt.Errorf("cleanup is not running")
	}
	scheduler := c.cron
	c.cron = nil
	c.running = false
	c.mu.Unlock()

	<-scheduler.Stop().Done()

	log.Info().Msg("Session cleanup stopped")

	return nil
}

func (c *Cleanup) sweep() {
	evicted := c.manager.SweepIdle(c.GetIdleTTL())
	if evicted > 0 {
		log.Info().
			Int("evicted", evicted).
			Msg("Evicted idle documents")
	}
}

// SweepNow runs one sweep immediately and returns the number of evicted handles.
func (c *Cleanup) SweepNow() int {
	return c.manager.SweepIdle(c.GetIdleTTL())
}

// IsRunning returns whether the schedule is active.
func (c *Cleanup) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// GetIdleTTL returns the idle threshold.
func (c *Cleanup) GetIdleTTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleTTL
}

// SetIdleTTL changes the idle threshold for subsequent sweeps.
func (c *Cleanup) SetIdleTTL(ttl time.Duration) {
	c.mu.Lock()
	c.idleTTL = ttl
	c.mu.Unlock()
	log.Info().Dur("idle_ttl", ttl).Msg("Idle TTL updated")
}
