package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hairocraft/callsync/internal/auth"
	"github.com/hairocraft/callsync/internal/client"
	"github.com/hairocraft/callsync/internal/store/model"
	"go.uber.org/zap"
)

type Outcome int

const (
	// OutcomeSuccess means the server accepted the upload.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable means the attempt failed but a later retry may
	// succeed.
	OutcomeRetryable
	// OutcomePermanent means no retry can ever succeed.
	OutcomePermanent
	// OutcomeNotAuthenticated means no credential exists right now. The
	// job is untouched and becomes due again once a session appears.
	OutcomeNotAuthenticated
)

// Result is the classified outcome of one upload attempt.
type Result struct {
	Outcome Outcome
	// ServerID is the server-assigned call-log id on a call-log success.
	ServerID int64
	// SentPath is the file actually transferred on a recording success.
	SentPath string
	Reason   string
}

// Executor performs a single upload attempt for one job. It never touches
// the queue; scheduling and persistence belong to the Orchestrator.
type Executor struct {
	api   client.Uploader
	creds auth.CredentialProvider
	log   *zap.SugaredLogger
}

func NewExecutor(api client.Uploader, creds auth.CredentialProvider) *Executor {
	return &Executor{
		api:   api,
		creds: creds,
		log:   zap.S().Named("executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, job *model.UploadJob) Result {
	token, ok := e.creds.Token()
	if !ok {
		return Result{Outcome: OutcomeNotAuthenticated, Reason: "not authenticated"}
	}

	switch job.Kind {
	case model.KindCallLog:
		return e.uploadCallLog(ctx, token, job)
	case model.KindRecording:
		return e.uploadRecording(ctx, token, job)
	default:
		return Result{Outcome: OutcomePermanent, Reason: fmt.Sprintf("unknown job kind %q", job.Kind)}
	}
}

func (e *Executor) uploadCallLog(ctx context.Context, token string, job *model.UploadJob) Result {
	id, err := e.api.UploadCallLog(ctx, token, job.ClientUUID, client.CallLog{
		CallerName:   job.ContactName,
		CallerNumber: job.PhoneNumber,
		CallType:     job.CallType,
		DurationSec:  job.CallDuration,
		TimestampMs:  job.CallTimestamp,
		SimSlot:      job.SimSlot,
		SimOperator:  job.SimOperator,
		SimNumber:    job.SimNumber,
	})
	if err != nil {
		return e.classify(job, err)
	}
	return Result{Outcome: OutcomeSuccess, ServerID: id}
}

func (e *Executor) uploadRecording(ctx context.Context, token string, job *model.UploadJob) Result {
	path := job.UploadPath()
	if _, err := os.Stat(path); err != nil {
		// The compressed copy lives in a cache directory and may have
		// been cleared since the job was queued. Fall back to the
		// original before giving up.
		if path != job.RecordingPath {
			if _, origErr := os.Stat(job.RecordingPath); origErr == nil {
				e.log.Warnf("compressed copy %s is gone, uploading original", path)
				path = job.RecordingPath
			} else {
				return Result{Outcome: OutcomePermanent, Reason: "recording file missing"}
			}
		} else {
			return Result{Outcome: OutcomePermanent, Reason: "recording file missing"}
		}
	}

	if job.Checksum == "" {
		sum, err := fileMD5(path)
		if err != nil {
			e.log.Warnf("cannot checksum %s: %v", path, err)
		} else {
			job.Checksum = sum
		}
	}

	// Recording jobs key idempotency on the parent call, so a job that is
	// deleted and re-created for the same call still dedupes server-side.
	idempotencyKey := job.ClientUUID
	if job.ParentUUID != nil && *job.ParentUUID != "" {
		idempotencyKey = "rec_" + *job.ParentUUID
	}

	err := e.api.UploadRecording(ctx, token, idempotencyKey, client.Recording{
		CallLogID:   job.CallLogID,
		FilePath:    path,
		DurationSec: job.CallDuration,
		Checksum:    job.Checksum,
	})
	if err != nil {
		return e.classify(job, err)
	}
	return Result{Outcome: OutcomeSuccess, SentPath: path}
}

func (e *Executor) classify(job *model.UploadJob, err error) Result {
	var statusErr *client.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.Permanent():
		return Result{Outcome: OutcomePermanent, Reason: err.Error()}
	case errors.Is(err, client.ErrMalformedResponse):
		// Probably a proxy or gateway mangling the body. Worth retrying,
		// but keep it visible in the logs.
		e.log.Warnf("malformed response for %s: %v", job.ClientUUID, err)
		return Result{Outcome: OutcomeRetryable, Reason: err.Error()}
	case errors.Is(err, client.ErrCallLogIDNotFound):
		// The server accepted the call log but the id could not be read
		// back. The retry is idempotent, so try again for the id.
		return Result{Outcome: OutcomeRetryable, Reason: err.Error()}
	default:
		return Result{Outcome: OutcomeRetryable, Reason: err.Error()}
	}
}

func fileMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
