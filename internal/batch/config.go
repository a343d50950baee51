package batch

import (
	"context"
	"fmt"
)

// Job is a named unit of work run on a cron schedule
type Job struct {
	Name string
	Cron string
	// RunOnStart also runs the job once when the watcher starts
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Validate checks if the job is valid
func (j *Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if j.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(j.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if j.Run == nil {
		return fmt.Errorf("job %s has no run function", j.Name)
	}
	return nil
}
