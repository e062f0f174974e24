package jobs

import (
	"context"
	"log"
	"time"
)

// ProcessPushReceiptsJob verifies Expo push receipts and prunes tokens for
// unregistered devices
type ProcessPushReceiptsJob struct {
	BaseJob
}

func (j *ProcessPushReceiptsJob) Name() string {
	return "process_push_receipts"
}

func (j *ProcessPushReceiptsJob) Schedule() string {
	return "*/30 * * * *" // Every 30 minutes
}

func (j *ProcessPushReceiptsJob) LockTimeout() time.Duration {
	return 10 * time.Minute
}

func (j *ProcessPushReceiptsJob) Execute(ctx context.Context) error {
	if notificationService == nil {
		log.Printf("Job %s: Notification service not configured, skipping", j.Name())
		return nil
	}
	return notificationService.ProcessReceipts(ctx)
}
