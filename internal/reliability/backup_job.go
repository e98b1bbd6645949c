package reliability

import (
	"context"
	"time"
)

const backupTimeout = 10 * time.Minute

// BackupJob runs a scheduled backup followed by rotation. It satisfies
// the scheduler's Job interface.
type BackupJob struct {
	service       *BackupService
	retentionDays int
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, retentionDays int) *BackupJob {
	return &BackupJob{service: service, retentionDays: retentionDays}
}

// Name implements the scheduler Job interface.
func (j *BackupJob) Name() string { return "s3_backup" }

// Run implements the scheduler Job interface.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	return j.service.RotateOldBackups(ctx, j.retentionDays)
}
