package trigger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gbasilveira/taskscheduler/scheduler"
)

// CronTrigger submits a task on a cron schedule. Grounded on
// orchestrator/cron_trigger.go's CronTrigger, retargeted from
// ExecuteWorkflow to Submit.
type CronTrigger struct {
	*BaseTrigger
	schedule string
	builder  func(fireTime time.Time, sequence uint64) scheduler.Submission

	cron   *cron.Cron
	cronID cron.EntryID
	mu     sync.Mutex
	seq    uint64
}

// CronTriggerConfig configures a cron trigger.
type CronTriggerConfig struct {
	ID       string
	Schedule string // 6-field cron expression (seconds minutes hours day month weekday)

	// Builder constructs the submission fired at fireTime. sequence counts
	// firings starting at 1, useful for deriving a unique MsgID per fire.
	Builder func(fireTime time.Time, sequence uint64) scheduler.Submission
}

// NewCronTrigger creates a new cron trigger, validating the schedule
// eagerly so configuration errors surface before Start.
func NewCronTrigger(config CronTriggerConfig) (*CronTrigger, error) {
	probe := cron.New(cron.WithSeconds())
	if _, err := probe.AddFunc(config.Schedule, func() {}); err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}
	probe.Stop()

	return &CronTrigger{
		BaseTrigger: NewBaseTrigger(config.ID, "cron"),
		schedule:    config.Schedule,
		builder:     config.Builder,
		cron:        cron.New(cron.WithSeconds()),
	}, nil
}

// Start begins the cron trigger.
func (ct *CronTrigger) Start(ctx context.Context, submitter Submitter) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.active {
		return fmt.Errorf("cron trigger %s is already active", ct.id)
	}

	var err error
	ct.cronID, err = ct.cron.AddFunc(ct.schedule, func() {
		sequence := atomic.AddUint64(&ct.seq, 1)
		sub := ct.builder(time.Now(), sequence)

		submitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := submitter.Submit(submitCtx, sub); err != nil {
			fmt.Printf("cron trigger %s failed to submit %s: %v\n", ct.id, sub.MsgID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	ct.cron.Start()
	ct.setActive(true)

	go func() {
		<-ctx.Done()
		ct.Stop()
	}()

	return nil
}

// Stop stops the cron trigger.
func (ct *CronTrigger) Stop() error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.active {
		return nil
	}
	ct.cron.Stop()
	ct.setActive(false)
	return nil
}
