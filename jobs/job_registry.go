package jobs

import (
	"chat-relay-server/notifications"
	"os"
	"strings"
)

// JobConfig represents a job and its enabled status
type JobConfig struct {
	Job     Job
	Enabled bool
}

// IsEnabled checks if the job is enabled via config or environment variable
// Environment variable format: JOB_{JOB_NAME}=false
// Example: JOB_DELETE_EXPIRED_RESERVATIONS=false
func (c *JobConfig) IsEnabled() bool {
	if !c.Enabled {
		return false
	}

	envKey := "JOB_" + strings.ToUpper(c.Job.Name())
	envValue := os.Getenv(envKey)
	if envValue == "false" || envValue == "0" {
		return false
	}

	return true
}

// notificationService is shared by jobs that talk to the Expo receipts API.
// Set via SetNotificationService before the scheduler starts.
var notificationService *notifications.NotificationService

// SetNotificationService wires the push notification service into jobs that
// need it.
func SetNotificationService(svc *notifications.NotificationService) {
	notificationService = svc
}

// GetJobConfigs returns all registered jobs with their configurations
func GetJobConfigs(baseJob BaseJob) []JobConfig {
	return []JobConfig{
		{
			Job:     &CleanupExpiredGroupsJob{BaseJob: baseJob},
			Enabled: true,
		},
		{
			Job:     &DeleteExpiredInvitesJob{BaseJob: baseJob},
			Enabled: true,
		},
		{
			Job:     &DeleteExpiredReservationsJob{BaseJob: baseJob},
			Enabled: true,
		},
		{
			Job:     &ProcessPushReceiptsJob{BaseJob: baseJob},
			Enabled: true,
		},
	}
}
