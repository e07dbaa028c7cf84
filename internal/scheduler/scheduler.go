package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron and tracks named jobs and their next run.
type Scheduler struct {
	mu   sync.RWMutex
	c    *cron.Cron
	jobs map[string]job
}

type job struct {
	id   cron.EntryID
	expr string
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name      string     `json:"name"`
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// New creates a stopped Scheduler. Call Start to activate it.
func New() *Scheduler {
	return &Scheduler{
		c:    cron.New(),
		jobs: make(map[string]job),
	}
}

// SetJob registers fn under name, replacing any job already using that name.
// If the scheduler is already running, the job takes effect immediately.
func (s *Scheduler) SetJob(name, expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.c.Remove(old.id)
	}
	s.jobs[name] = job{id: id, expr: expr}
	slog.Info("scheduler: job set", "job", name, "cron", expr)
	return nil
}

// RemoveJob unregisters name. Unknown names are ignored.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		s.c.Remove(j.id)
		delete(s.jobs, name)
	}
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// Jobs lists registered jobs by name. NextRunAt is nil until Start.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		info := JobInfo{Name: name, Cron: j.expr}
		if entry := s.c.Entry(j.id); entry.ID != 0 && !entry.Next.IsZero() {
			t := entry.Next
			info.NextRunAt = &t
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, k int) bool { return infos[i].Name < infos[k].Name })
	return infos
}
