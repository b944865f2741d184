package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	// Bounded waits for upload resolution. Recordings get a longer budget
	// because of file transfer time on slow links.
	DefaultCallLogTimeout   = 45 * time.Second
	DefaultRecordingTimeout = 95 * time.Second
)

type Config struct {
	BaseURL          string
	CallLogTimeout   time.Duration
	RecordingTimeout time.Duration
	HTTPClient       *http.Client
}

func NewDefault(baseURL string) *Config {
	return &Config{
		BaseURL:          baseURL,
		CallLogTimeout:   DefaultCallLogTimeout,
		RecordingTimeout: DefaultRecordingTimeout,
	}
}

// CallLog is the payload of POST /call-logs.
type CallLog struct {
	CallerName   string
	CallerNumber string
	CallType     string
	DurationSec  int64
	TimestampMs  int64
	SimSlot      string
	SimOperator  string
	SimNumber    string
}

// Recording is the payload of the multipart POST /call-recordings.
type Recording struct {
	CallLogID   int64
	FilePath    string
	DurationSec int64
	Checksum    string
}

// Uploader is the network boundary of the sync engine. Both uploads are
// idempotent on the server side, keyed by the Idempotency-Key header.
//
//go:generate moq -fmt=goimports -out zz_generated_uploader.go . Uploader
type Uploader interface {
	// UploadCallLog posts one call log and returns the server-assigned
	// call-log id.
	UploadCallLog(ctx context.Context, token, idempotencyKey string, callLog CallLog) (int64, error)
	UploadRecording(ctx context.Context, token, idempotencyKey string, rec Recording) error
	Health(ctx context.Context) error
}

var _ Uploader = (*uploader)(nil)

type uploader struct {
	cfg    *Config
	client *http.Client
}

func New(cfg *Config) Uploader {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.CallLogTimeout == 0 {
		cfg.CallLogTimeout = DefaultCallLogTimeout
	}
	if cfg.RecordingTimeout == 0 {
		cfg.RecordingTimeout = DefaultRecordingTimeout
	}
	return &uploader{cfg: cfg, client: httpClient}
}

func (u *uploader) UploadCallLog(ctx context.Context, token, idempotencyKey string, callLog CallLog) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.CallLogTimeout)
	defer cancel()

	callerName := callLog.CallerName
	if callerName == "" {
		callerName = "Unknown"
	}
	body := map[string]any{
		"caller_name":    callerName,
		"caller_number":  callLog.CallerNumber,
		"call_type":      callLog.CallType,
		"call_duration":  callLog.DurationSec,
		"call_timestamp": time.UnixMilli(callLog.TimestampMs).Format("2006-01-02 15:04:05"),
	}
	if callLog.SimSlot != "" {
		body["sim_slot_index"] = callLog.SimSlot
	}
	if callLog.SimOperator != "" {
		body["sim_name"] = callLog.SimOperator
	}
	if callLog.SimNumber != "" {
		body["sim_number"] = callLog.SimNumber
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "encoding call log")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.BaseURL+"/call-logs", bytes.NewReader(payload))
	if err != nil {
		return 0, errors.Wrap(err, "building call log request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "posting call log")
	}
	defer resp.Body.Close()

	envelope, err := decodeEnvelope(resp)
	if err != nil {
		return 0, err
	}

	id, found := ExtractCallLogID(envelope)
	if !found {
		return 0, ErrCallLogIDNotFound
	}
	return id, nil
}

func (u *uploader) UploadRecording(ctx context.Context, token, idempotencyKey string, rec Recording) error {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.RecordingTimeout)
	defer cancel()

	file, err := os.Open(rec.FilePath)
	if err != nil {
		return errors.Wrap(err, "opening recording file")
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeRecordingForm(mw, file, rec)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.BaseURL+"/call-recordings", pr)
	if err != nil {
		return errors.Wrap(err, "building recording request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting recording")
	}
	defer resp.Body.Close()

	_, err = decodeEnvelope(resp)
	return err
}

func (u *uploader) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.BaseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "building health request")
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

func writeRecordingForm(mw *multipart.Writer, file *os.File, rec Recording) error {
	if err := mw.WriteField("call_log_id", strconv.FormatInt(rec.CallLogID, 10)); err != nil {
		return err
	}
	if err := mw.WriteField("duration", strconv.FormatInt(rec.DurationSec, 10)); err != nil {
		return err
	}
	if rec.Checksum != "" {
		if err := mw.WriteField("checksum", rec.Checksum); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(rec.FilePath))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

// decodeEnvelope reads the common {"success": bool, "message": ..., "data": ...}
// response shape and converts failures into classified errors.
func decodeEnvelope(resp *http.Response) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		// Unparseable body. Assume a transient server or proxy hiccup
		// but keep the distinct marker for diagnosis.
		return nil, fmt.Errorf("%w: status %d: %v", ErrMalformedResponse, resp.StatusCode, err)
	}

	success, _ := envelope["success"].(bool)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && success {
		return envelope, nil
	}

	message, _ := envelope["message"].(string)
	if message == "" {
		message = resp.Status
	}
	return nil, &StatusError{Code: resp.StatusCode, Message: message}
}
