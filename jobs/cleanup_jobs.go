package jobs

import (
	"chat-relay-server/rediskeys"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// CleanupExpiredGroupsJob deletes groups that have passed their end_time
type CleanupExpiredGroupsJob struct {
	BaseJob
}

func (j *CleanupExpiredGroupsJob) Name() string {
	return "cleanup_expired_groups"
}

func (j *CleanupExpiredGroupsJob) Schedule() string {
	return "0 */6 * * *" // Every 6 hours
}

func (j *CleanupExpiredGroupsJob) LockTimeout() time.Duration {
	return 30 * time.Minute
}

func (j *CleanupExpiredGroupsJob) Execute(ctx context.Context) error {
	// Get expired groups in batches of 50
	expiredGroups, err := j.db.GetExpiredGroups(ctx, 50)
	if err != nil {
		return fmt.Errorf("failed to get expired groups: %w", err)
	}

	if len(expiredGroups) == 0 {
		log.Printf("Job %s: No expired groups found", j.Name())
		return nil
	}

	log.Printf("Job %s: Found %d expired groups to clean up", j.Name(), len(expiredGroups))

	for _, group := range expiredGroups {
		if err := j.cleanupGroup(ctx, group.ID); err != nil {
			log.Printf("Job %s: Error cleaning up group %s: %v", j.Name(), group.ID, err)
			// Continue with other groups even if one fails
			continue
		}
		log.Printf("Job %s: Cleaned up group %s (ended %s)", j.Name(), group.ID, group.EndTime.Time.Format(time.RFC3339))
	}

	log.Printf("Job %s: Cleaned up %d expired groups", j.Name(), len(expiredGroups))
	return nil
}

func (j *CleanupExpiredGroupsJob) cleanupGroup(ctx context.Context, groupID uuid.UUID) error {
	// Step 1: Delete S3 objects for the group
	if err := j.deleteS3Objects(ctx, groupID); err != nil {
		log.Printf("Job %s: Warning - failed to delete S3 objects for group %s: %v", j.Name(), groupID, err)
		// Continue with database cleanup even if S3 cleanup fails
	}

	// Step 2: Delete database records in a transaction
	tx, err := j.pgxPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	qtx := j.db.WithTx(tx)

	if err := qtx.DeleteMessagesForGroup(ctx, &groupID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	if err := qtx.DeleteUserGroupsForGroup(ctx, &groupID); err != nil {
		return fmt.Errorf("failed to delete user_groups: %w", err)
	}

	if _, err := qtx.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Step 3: Cleanup Redis keys (best-effort)
	if err := j.cleanupRedisKeys(ctx, groupID); err != nil {
		log.Printf("Job %s: Warning - failed to cleanup Redis keys for group %s: %v", j.Name(), groupID, err)
	}

	return nil
}

func (j *CleanupExpiredGroupsJob) deleteS3Objects(ctx context.Context, groupID uuid.UUID) error {
	if j.s3Client == nil {
		return nil
	}

	prefix := fmt.Sprintf("groups/%s/", groupID)

	listOutput, err := j.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(j.s3Bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to list S3 objects: %w", err)
	}

	if len(listOutput.Contents) == 0 {
		return nil
	}

	// Up to 1000 objects per call
	var objectIds []types.ObjectIdentifier
	for _, obj := range listOutput.Contents {
		objectIds = append(objectIds, types.ObjectIdentifier{
			Key: obj.Key,
		})
	}

	_, err = j.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(j.s3Bucket),
		Delete: &types.Delete{
			Objects: objectIds,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete S3 objects: %w", err)
	}

	log.Printf("Job %s: Deleted %d S3 objects for group %s", j.Name(), len(objectIds), groupID)
	return nil
}

func (j *CleanupExpiredGroupsJob) cleanupRedisKeys(ctx context.Context, groupID uuid.UUID) error {
	groupIDStr := groupID.String()
	membersKey := rediskeys.GroupMembers(groupIDStr)

	members, err := j.redisClient.SMembers(ctx, membersKey).Result()
	if err != nil {
		log.Printf("Job %s: Warning - failed to get group members from Redis: %v", j.Name(), err)
		members = []string{}
	}

	for _, memberID := range members {
		if err := j.redisClient.SRem(ctx, rediskeys.UserGroups(memberID), groupIDStr).Err(); err != nil {
			log.Printf("Job %s: Warning - failed to remove group from user %s groups: %v", j.Name(), memberID, err)
		}
	}

	if err := j.redisClient.Del(ctx, membersKey).Err(); err != nil {
		log.Printf("Job %s: Warning - failed to delete group members set: %v", j.Name(), err)
	}

	if err := j.redisClient.Del(ctx, rediskeys.GroupInfo(groupIDStr)).Err(); err != nil {
		log.Printf("Job %s: Warning - failed to delete groupinfo: %v", j.Name(), err)
	}

	return nil
}

// DeleteExpiredInvitesJob removes invite links past their expiry time
type DeleteExpiredInvitesJob struct {
	BaseJob
}

func (j *DeleteExpiredInvitesJob) Name() string {
	return "delete_expired_invites"
}

func (j *DeleteExpiredInvitesJob) Schedule() string {
	return "0 2 * * *" // Daily at 2 AM UTC
}

func (j *DeleteExpiredInvitesJob) LockTimeout() time.Duration {
	return 5 * time.Minute
}

func (j *DeleteExpiredInvitesJob) Execute(ctx context.Context) error {
	deleted, err := j.db.DeleteExpiredInvites(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete expired invites: %w", err)
	}

	log.Printf("Job %s: Deleted %d expired invites", j.Name(), deleted)
	return nil
}

// DeleteExpiredReservationsJob removes group ID reservations older than 24 hours
type DeleteExpiredReservationsJob struct {
	BaseJob
}

func (j *DeleteExpiredReservationsJob) Name() string {
	return "delete_expired_reservations"
}

func (j *DeleteExpiredReservationsJob) Schedule() string {
	return "0 3 * * *" // Daily at 3 AM UTC
}

func (j *DeleteExpiredReservationsJob) LockTimeout() time.Duration {
	return 5 * time.Minute
}

func (j *DeleteExpiredReservationsJob) Execute(ctx context.Context) error {
	deleted, err := j.db.DeleteExpiredReservations(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete expired reservations: %w", err)
	}

	log.Printf("Job %s: Deleted %d expired reservations", j.Name(), deleted)
	return nil
}
