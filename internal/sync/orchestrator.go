package sync

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hairocraft/callsync/internal/auth"
	"github.com/hairocraft/callsync/internal/compress"
	"github.com/hairocraft/callsync/internal/matcher"
	"github.com/hairocraft/callsync/internal/store"
	"github.com/hairocraft/callsync/internal/store/model"
	"github.com/hairocraft/callsync/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// Uploading rows older than these cutoffs belong to a crashed or
	// killed process; the HTTP client would have resolved within the
	// request timeout otherwise.
	callLogStaleAfter   = 45 * time.Second
	recordingStaleAfter = 95 * time.Second

	// Call events reported twice by the source land within this window of
	// each other.
	dedupWindowMs = 1000
)

// CallEvent is one finished call as reported by the event source.
type CallEvent struct {
	PhoneNumber string
	CallType    string
	DurationSec int64
	TimestampMs int64
	ContactName string
	SimSlot     string
	SimOperator string
	SimNumber   string
}

// Orchestrator drives the upload queue: it accepts call events, schedules
// due jobs onto the Executor, applies retry backoff, and runs the recording
// search for completed call logs.
type Orchestrator struct {
	store      store.Store
	executor   *Executor
	creds      auth.CredentialProvider
	matcher    *matcher.Matcher
	phones     matcher.PhoneConfig
	compressor compress.Compressor
	retention  time.Duration
	log        *zap.SugaredLogger

	now          func() time.Time
	searchDelays []time.Duration

	// inflight keys currently being processed. Recording jobs key on the
	// parent call so a chain never has two concurrent attempts.
	mu       sync.Mutex
	inflight map[string]struct{}

	searchWG sync.WaitGroup
}

type Option func(*Orchestrator)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSearchDelays overrides the recording search ladder. Used by tests.
func WithSearchDelays(delays []time.Duration) Option {
	return func(o *Orchestrator) {
		o.searchDelays = delays
	}
}

func NewOrchestrator(st store.Store, executor *Executor, creds auth.CredentialProvider, m *matcher.Matcher, phones matcher.PhoneConfig, compressor compress.Compressor, retention time.Duration, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        st,
		executor:     executor,
		creds:        creds,
		matcher:      m,
		phones:       phones,
		compressor:   compressor,
		retention:    retention,
		log:          zap.S().Named("sync"),
		now:          time.Now,
		searchDelays: defaultSearchDelays,
		inflight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleCallEvent durably enqueues a call event. Events for the same number
// within one second of an already-queued call are treated as duplicate
// reports and suppressed. Returns the queued (or pre-existing) job and
// whether a new job was created.
func (o *Orchestrator) HandleCallEvent(ctx context.Context, ev CallEvent) (*model.UploadJob, bool, error) {
	queue := o.store.Queue()

	// The dedup lookup and the insert must see the same queue state.
	ctx, err := o.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, false, err
	}

	inWindow, err := queue.ListInWindow(ctx, model.KindCallLog,
		ev.TimestampMs-dedupWindowMs, ev.TimestampMs+dedupWindowMs)
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, false, err
	}
	for i := range inWindow {
		// Sources spell the same number differently ("+60123..." vs
		// "0123..."), so the comparison is fuzzy rather than a column match.
		if o.phones.NumbersEqual(inWindow[i].PhoneNumber, ev.PhoneNumber) {
			_, _ = store.Rollback(ctx)
			o.log.Debugf("duplicate call event for %s at %d, already queued as %s",
				ev.PhoneNumber, ev.TimestampMs, inWindow[i].ClientUUID)
			return &inWindow[i], false, nil
		}
	}

	job := model.NewCallLogJob(ev.PhoneNumber, ev.CallType, ev.DurationSec, ev.TimestampMs,
		ev.ContactName, ev.SimSlot, ev.SimOperator, ev.SimNumber)
	if _, err := queue.Create(ctx, job); err != nil {
		_, _ = store.Rollback(ctx)
		return nil, false, err
	}
	if _, err := store.Commit(ctx); err != nil {
		return nil, false, err
	}

	o.log.Infof("queued call log %s (%s, %ds)", job.ClientUUID, ev.CallType, ev.DurationSec)
	return job, true, nil
}

// TriggerSync runs a sync pass in the background. Safe to call from any
// goroutine and at any frequency; overlapping passes skip each other's
// in-flight chains.
func (o *Orchestrator) TriggerSync(ctx context.Context) {
	go func() {
		if err := o.RunDueJobs(ctx); err != nil {
			o.log.Errorf("sync pass failed: %v", err)
		}
	}()
}

// RunDueJobs performs one scheduling pass: reclaim stale uploads, attempt
// every due job concurrently, wait for the batch, then prune old completed
// rows. A missing credential skips the pass entirely; jobs stay queued and
// the next trigger re-checks.
func (o *Orchestrator) RunDueJobs(ctx context.Context) error {
	if !o.creds.IsAuthenticated() {
		o.log.Debug("no credentials, skipping sync pass")
		return nil
	}

	queue := o.store.Queue()
	nowMs := o.now().UnixMilli()

	o.reclaimStale(ctx, nowMs)

	jobs, err := queue.ListDue(ctx, nowMs)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	started := 0
	for i := range jobs {
		job := jobs[i]
		key := chainKey(&job)
		if !o.acquire(key) {
			continue
		}
		started++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.release(key)
			o.process(ctx, &job)
		}()
	}
	wg.Wait()
	if started > 0 {
		o.log.Infof("sync pass attempted %d of %d due jobs", started, len(jobs))
	}

	cutoff := nowMs - o.retention.Milliseconds()
	if deleted, err := queue.DeleteCompletedOlderThan(ctx, cutoff); err != nil {
		o.log.Warnf("failed to prune completed jobs: %v", err)
	} else if deleted > 0 {
		o.log.Infof("pruned %d completed jobs", deleted)
	}
	return nil
}

// WaitSearches blocks until every in-flight recording search has finished.
func (o *Orchestrator) WaitSearches() {
	o.searchWG.Wait()
}

func (o *Orchestrator) reclaimStale(ctx context.Context, nowMs int64) {
	queue := o.store.Queue()
	for kind, staleAfter := range map[model.JobKind]time.Duration{
		model.KindCallLog:   callLogStaleAfter,
		model.KindRecording: recordingStaleAfter,
	} {
		n, err := queue.ReclaimStale(ctx, kind, nowMs-staleAfter.Milliseconds())
		if err != nil {
			o.log.Warnf("failed to reclaim stale %s uploads: %v", kind, err)
			continue
		}
		if n > 0 {
			o.log.Warnf("reclaimed %d abandoned %s uploads", n, kind)
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, job *model.UploadJob) {
	queue := o.store.Queue()

	job.Status = model.StatusUploading
	job.LastAttemptAt = o.now().UnixMilli()
	if err := queue.Update(ctx, job); err != nil {
		o.log.Errorf("failed to claim job %s: %v", job.ClientUUID, err)
		return
	}

	res := o.executor.Execute(ctx, job)
	switch res.Outcome {
	case OutcomeSuccess:
		o.complete(ctx, job, res)
	case OutcomeRetryable:
		o.markFailed(ctx, job, res.Reason, false)
	case OutcomePermanent:
		o.markFailed(ctx, job, res.Reason, true)
	case OutcomeNotAuthenticated:
		// Credentials vanished between the pass check and this attempt.
		// Put the job back untouched.
		job.Status = model.StatusPending
		if err := queue.Update(ctx, job); err != nil {
			o.log.Errorf("failed to release job %s: %v", job.ClientUUID, err)
		}
	}
}

func (o *Orchestrator) complete(ctx context.Context, job *model.UploadJob, res Result) {
	job.Status = model.StatusCompleted
	job.ErrorMessage = ""
	if job.Kind == model.KindCallLog && res.ServerID > 0 {
		job.CallLogID = res.ServerID
	}
	if err := o.store.Queue().Update(ctx, job); err != nil {
		o.log.Errorf("failed to mark job %s completed: %v", job.ClientUUID, err)
		return
	}
	metrics.IncreaseUploadsTotalMetric(string(job.Kind), "completed")
	o.log.Infof("uploaded %s %s", job.Kind, job.ClientUUID)

	switch job.Kind {
	case model.KindRecording:
		o.cleanupCompressed(job)
	case model.KindCallLog:
		if wantsRecording(job) {
			o.scheduleRecordingSearch(ctx, *job)
		}
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, job *model.UploadJob, reason string, permanent bool) {
	job.Status = model.StatusFailed
	job.ErrorMessage = reason
	job.Permanent = permanent
	if permanent {
		metrics.IncreaseUploadsTotalMetric(string(job.Kind), "permanent")
		o.log.Errorf("upload %s failed permanently: %s", job.ClientUUID, reason)
	} else {
		delay := BackoffDelay(job.RetryCount)
		job.RetryCount++
		job.NextRetryAt = o.now().Add(delay).UnixMilli()
		metrics.IncreaseUploadsTotalMetric(string(job.Kind), "retryable")
		o.log.Warnf("upload %s failed (attempt %d), next retry in %s: %s",
			job.ClientUUID, job.RetryCount, delay, reason)
	}
	if err := o.store.Queue().Update(ctx, job); err != nil {
		o.log.Errorf("failed to mark job %s failed: %v", job.ClientUUID, err)
	}
}

// cleanupCompressed removes the cached compressed copy once the recording
// reached the server. The original is never touched.
func (o *Orchestrator) cleanupCompressed(job *model.UploadJob) {
	if job.CompressedPath == nil || *job.CompressedPath == "" || *job.CompressedPath == job.RecordingPath {
		return
	}
	if err := os.Remove(*job.CompressedPath); err != nil && !os.IsNotExist(err) {
		o.log.Warnf("failed to remove compressed copy %s: %v", *job.CompressedPath, err)
	}
}

// wantsRecording reports whether a completed call log should trigger a
// recording search. Missed and rejected calls never produce a recording,
// and neither do zero-duration connects.
func wantsRecording(job *model.UploadJob) bool {
	if job.NoRecordingFound {
		return false
	}
	if job.CallDuration <= 0 {
		return false
	}
	switch job.CallType {
	case model.CallTypeMissed, model.CallTypeRejected:
		return false
	}
	return job.CallLogID > 0
}

func chainKey(job *model.UploadJob) string {
	if job.Kind == model.KindRecording && job.ParentUUID != nil && *job.ParentUUID != "" {
		return *job.ParentUUID
	}
	return job.ClientUUID
}

func (o *Orchestrator) acquire(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[key]; busy {
		return false
	}
	o.inflight[key] = struct{}{}
	return true
}

func (o *Orchestrator) release(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, key)
}
