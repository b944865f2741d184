package store

import (
	"context"

	"github.com/hairocraft/callsync/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Queue() Queue
	Statistics(ctx context.Context) (model.QueueStats, error)
	InitialMigration() error
	Close() error
}

type DataStore struct {
	queue Queue
	db    *gorm.DB
	log   logrus.FieldLogger
}

func NewStore(db *gorm.DB, log logrus.FieldLogger) Store {
	return &DataStore{
		queue: NewQueue(db, log),
		db:    db,
		log:   log,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db, s.log)
}

func (s *DataStore) Queue() Queue {
	return s.queue
}

func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.UploadJob{})
}

func (s *DataStore) Statistics(ctx context.Context) (model.QueueStats, error) {
	var rows []struct {
		Status model.JobStatus
		Total  int64
	}
	result := s.db.WithContext(ctx).Model(&model.UploadJob{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows)
	if result.Error != nil {
		return model.QueueStats{}, result.Error
	}

	stats := model.QueueStats{}
	for _, row := range rows {
		switch row.Status {
		case model.StatusPending:
			stats.Pending = row.Total
		case model.StatusUploading:
			stats.Uploading = row.Total
		case model.StatusFailed:
			stats.Failed = row.Total
		case model.StatusCompleted:
			stats.Completed = row.Total
		}
	}
	return stats, nil
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
