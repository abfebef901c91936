package server

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DiagnosticsJob logs a registry snapshot on a cron schedule.
type DiagnosticsJob struct {
	cron *cron.Cron
}

// ScheduleDiagnostics starts logging Diagnostics on schedule, a standard cron
// expression or a descriptor such as "@every 1m".
func (r *Relay) ScheduleDiagnostics(schedule string) (*DiagnosticsJob, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, r.Diagnostics); err != nil {
		return nil, fmt.Errorf("schedule diagnostics %q: %w", schedule, err)
	}

	c.Start()
	r.log.Printf("diagnostics scheduled %s", schedule)

	return &DiagnosticsJob{cron: c}, nil
}

func (j *DiagnosticsJob) Stop() {
	<-j.cron.Stop().Done()
}
