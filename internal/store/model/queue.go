package model

import (
	"github.com/google/uuid"
)

type JobKind string

const (
	KindCallLog   JobKind = "call_log"
	KindRecording JobKind = "recording"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusUploading JobStatus = "uploading"
	StatusFailed    JobStatus = "failed"
	StatusCompleted JobStatus = "completed"
)

// Call types delivered by the call-event source.
const (
	CallTypeIncoming = "incoming"
	CallTypeOutgoing = "outgoing"
	CallTypeMissed   = "missed"
	CallTypeRejected = "rejected"
)

// UploadJob is one row of the upload_queue table: a call-log or recording
// upload attempt chain. ClientUUID is the idempotency anchor and never
// changes once assigned.
type UploadJob struct {
	ID         int64   `gorm:"primaryKey"`
	ClientUUID string  `gorm:"column:client_uuid;uniqueIndex"`
	ParentUUID *string `gorm:"column:parent_uuid;index"`
	Kind       JobKind

	// Call-log payload.
	PhoneNumber   string
	CallType      string
	CallDuration  int64 // seconds
	CallTimestamp int64 `gorm:"index"` // epoch ms
	ContactName   string
	SimSlot       string
	SimOperator   string
	SimNumber     string

	// Recording payload.
	CallLogID      int64 // server-side id, once known
	RecordingPath  string
	CompressedPath *string
	FileSize       int64
	Checksum       string

	Status           JobStatus `gorm:"index:idx_upload_queue_due"`
	RetryCount       int
	Permanent        bool
	NoRecordingFound bool
	CreatedAt        int64 `gorm:"autoCreateTime:milli"`
	LastAttemptAt    int64
	NextRetryAt      int64 `gorm:"index:idx_upload_queue_due"`
	ErrorMessage     string
}

func (UploadJob) TableName() string {
	return "upload_queue"
}

func NewCallLogJob(phoneNumber, callType string, durationSec, timestampMs int64, contactName, simSlot, simOperator, simNumber string) *UploadJob {
	return &UploadJob{
		ClientUUID:    uuid.NewString(),
		Kind:          KindCallLog,
		PhoneNumber:   phoneNumber,
		CallType:      callType,
		CallDuration:  durationSec,
		CallTimestamp: timestampMs,
		ContactName:   contactName,
		SimSlot:       simSlot,
		SimOperator:   simOperator,
		SimNumber:     simNumber,
		Status:        StatusPending,
	}
}

func NewRecordingJob(parentUUID string, callLogID int64, phoneNumber string, timestampMs, durationSec int64, recordingPath string, compressedPath *string, fileSize int64) *UploadJob {
	return &UploadJob{
		ClientUUID:     uuid.NewString(),
		ParentUUID:     &parentUUID,
		Kind:           KindRecording,
		PhoneNumber:    phoneNumber,
		CallTimestamp:  timestampMs,
		CallDuration:   durationSec,
		CallLogID:      callLogID,
		RecordingPath:  recordingPath,
		CompressedPath: compressedPath,
		FileSize:       fileSize,
		Status:         StatusPending,
	}
}

// UploadPath is the file the executor should send: the compressed copy when
// one was adopted, the original otherwise.
func (j *UploadJob) UploadPath() string {
	if j.CompressedPath != nil && *j.CompressedPath != "" {
		return *j.CompressedPath
	}
	return j.RecordingPath
}

// QueueStats is a point-in-time breakdown of the queue, used by the
// metrics collector and the status endpoint.
type QueueStats struct {
	Pending   int64
	Uploading int64
	Failed    int64
	Completed int64
}
