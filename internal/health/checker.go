package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dbquery/internal/database"
)

const checkTimeout = 10 * time.Second

// Status is the outcome of the most recent pool check
type Status struct {
	Healthy   bool           `json:"healthy"`
	Error     string         `json:"error,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	Latency   time.Duration  `json:"latency"`
	Stats     database.Stats `json:"stats"`
	NextCheck *time.Time     `json:"next_check,omitempty"`
}

// Checker pings a pool on a cron schedule and keeps the last result
type Checker struct {
	pool     database.Pool
	schedule string
	cron     *cron.Cron
	entryID  cron.EntryID
	mu       sync.RWMutex
	last     Status
	running  bool
	initial  sync.WaitGroup
}

// NewChecker creates a checker for pool. schedule is a cron spec such as
// "@every 30s".
func NewChecker(pool database.Pool, schedule string) *Checker {
	return &Checker{
		pool:     pool,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start runs one check immediately and then follows the schedule
func (c *Checker) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	id, err := c.cron.AddFunc(c.schedule, c.scheduledCheck)
	if err != nil {
		return fmt.Errorf("invalid health schedule %q: %w", c.schedule, err)
	}
	c.entryID = id
	c.cron.Start()
	c.running = true

	log.Info().Str("schedule", c.schedule).Msg("Health checker started")

	c.initial.Add(1)
	go func() {
		defer c.initial.Done()
		c.scheduledCheck()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running check to finish
func (c *Checker) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cron.Remove(c.entryID)
	c.entryID = 0
	c.mu.Unlock()

	ctx := c.cron.Stop()
	<-ctx.Done()
	c.initial.Wait()

	log.Info().Msg("Health checker stopped")
}

// Check pings the pool now and records the result
func (c *Checker) Check(ctx context.Context) Status {
	start := time.Now()
	err := c.pool.Ping(ctx)

	status := Status{
		Healthy:   err == nil,
		CheckedAt: start,
		Latency:   time.Since(start),
		Stats:     c.pool.Stats(),
	}
	if err != nil {
		status.Error = err.Error()
	}

	c.mu.Lock()
	prev := c.last
	c.last = status
	c.mu.Unlock()

	switch {
	case err != nil:
		log.Warn().Str("error", status.Error).Msg("Database health check failed")
	case !prev.Healthy && !prev.CheckedAt.IsZero():
		log.Info().Dur("latency", status.Latency).Msg("Database health restored")
	default:
		log.Trace().
			Dur("latency", status.Latency).
			Int("open", status.Stats.Open).
			Int("in_use", status.Stats.InUse).
			Msg("Database health check passed")
	}

	return status
}

// Last returns the most recent result. CheckedAt is zero before the first check.
func (c *Checker) Last() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := c.last
	if c.entryID != 0 {
		if next := c.cron.Entry(c.entryID).Next; !next.IsZero() {
			status.NextCheck = &next
		}
	}
	return status
}

func (c *Checker) scheduledCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	c.Check(ctx)
}
