package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/hairocraft/callsync/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Queue is the persistent upload queue. All mutations go through the single
// database writer; callers may race freely.
type Queue interface {
	Create(ctx context.Context, job *model.UploadJob) (*model.UploadJob, error)
	Update(ctx context.Context, job *model.UploadJob) error
	GetByUUID(ctx context.Context, clientUUID string) (*model.UploadJob, error)
	GetRecordingByParentUUID(ctx context.Context, parentUUID string) (*model.UploadJob, error)
	// ListDue returns pending and failed jobs whose next retry time has
	// arrived, oldest first. Jobs flagged permanent are excluded until the
	// underlying cause is resolved externally.
	ListDue(ctx context.Context, nowMs int64) ([]model.UploadJob, error)
	// FindInWindow is the duplicate-suppression lookup: any job of the given
	// kind for the same phone number whose call timestamp falls inside
	// [startMs, endMs].
	FindInWindow(ctx context.Context, kind model.JobKind, phoneNumber string, startMs, endMs int64) (*model.UploadJob, error)
	// ListInWindow returns every job of the given kind whose call timestamp
	// falls inside [startMs, endMs], oldest first. Callers that cannot rely
	// on an exact phone-number column match filter the result themselves.
	ListInWindow(ctx context.Context, kind model.JobKind, startMs, endMs int64) ([]model.UploadJob, error)
	// ReclaimStale re-classifies uploading rows whose attempt started before
	// the cutoff as failed, so jobs abandoned by a dead process become due
	// again instead of staying orphaned.
	ReclaimStale(ctx context.Context, kind model.JobKind, attemptBeforeMs int64) (int64, error)
	SetNoRecordingFound(ctx context.Context, clientUUID string) error
	DeleteCompletedOlderThan(ctx context.Context, cutoffMs int64) (int64, error)
	PendingCount(ctx context.Context) (int64, error)
}

type QueueStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// Make sure we conform to Queue interface
var _ Queue = (*QueueStore)(nil)

func NewQueue(db *gorm.DB, log logrus.FieldLogger) Queue {
	return &QueueStore{db: db, log: log}
}

func (s *QueueStore) Create(ctx context.Context, job *model.UploadJob) (*model.UploadJob, error) {
	result := s.getDB(ctx).Create(job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("inserting upload job: %w", result.Error)
	}
	return job, nil
}

func (s *QueueStore) Update(ctx context.Context, job *model.UploadJob) error {
	result := s.getDB(ctx).Save(job)
	if result.Error != nil {
		return fmt.Errorf("updating upload job %s: %w", job.ClientUUID, result.Error)
	}
	return nil
}

func (s *QueueStore) GetByUUID(ctx context.Context, clientUUID string) (*model.UploadJob, error) {
	var job model.UploadJob
	result := s.getDB(ctx).First(&job, "client_uuid = ?", clientUUID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying upload job: %w", result.Error)
	}
	return &job, nil
}

func (s *QueueStore) GetRecordingByParentUUID(ctx context.Context, parentUUID string) (*model.UploadJob, error) {
	var job model.UploadJob
	result := s.getDB(ctx).First(&job, "kind = ? AND parent_uuid = ?", model.KindRecording, parentUUID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying recording job: %w", result.Error)
	}
	return &job, nil
}

func (s *QueueStore) ListDue(ctx context.Context, nowMs int64) ([]model.UploadJob, error) {
	var jobs []model.UploadJob
	result := s.getDB(ctx).
		Where("status IN ? AND permanent = ? AND next_retry_at <= ?",
			[]model.JobStatus{model.StatusPending, model.StatusFailed}, false, nowMs).
		Order("created_at ASC").
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("querying due jobs: %w", result.Error)
	}
	return jobs, nil
}

func (s *QueueStore) FindInWindow(ctx context.Context, kind model.JobKind, phoneNumber string, startMs, endMs int64) (*model.UploadJob, error) {
	var job model.UploadJob
	result := s.getDB(ctx).
		Where("kind = ? AND phone_number = ? AND call_timestamp BETWEEN ? AND ?",
			kind, phoneNumber, startMs, endMs).
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying window: %w", result.Error)
	}
	return &job, nil
}

func (s *QueueStore) ListInWindow(ctx context.Context, kind model.JobKind, startMs, endMs int64) ([]model.UploadJob, error) {
	var jobs []model.UploadJob
	result := s.getDB(ctx).
		Where("kind = ? AND call_timestamp BETWEEN ? AND ?", kind, startMs, endMs).
		Order("created_at ASC").
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("querying window: %w", result.Error)
	}
	return jobs, nil
}

func (s *QueueStore) ReclaimStale(ctx context.Context, kind model.JobKind, attemptBeforeMs int64) (int64, error) {
	result := s.getDB(ctx).Model(&model.UploadJob{}).
		Where("kind = ? AND status = ? AND last_attempt_at < ?", kind, model.StatusUploading, attemptBeforeMs).
		Updates(map[string]any{
			"status":        model.StatusFailed,
			"error_message": "upload abandoned mid-flight",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("reclaiming stale uploads: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *QueueStore) SetNoRecordingFound(ctx context.Context, clientUUID string) error {
	result := s.getDB(ctx).Model(&model.UploadJob{}).
		Where("client_uuid = ? AND kind = ?", clientUUID, model.KindCallLog).
		Update("no_recording_found", true)
	if result.Error != nil {
		return fmt.Errorf("marking no recording found: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *QueueStore) DeleteCompletedOlderThan(ctx context.Context, cutoffMs int64) (int64, error) {
	result := s.getDB(ctx).
		Where("status = ? AND created_at < ?", model.StatusCompleted, cutoffMs).
		Delete(&model.UploadJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting completed jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *QueueStore) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	result := s.getDB(ctx).Model(&model.UploadJob{}).
		Where("status IN ?", []model.JobStatus{model.StatusPending, model.StatusFailed}).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("counting pending jobs: %w", result.Error)
	}
	return count, nil
}

func (s *QueueStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
