package sync_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hairocraft/callsync/internal/auth"
	"github.com/hairocraft/callsync/internal/client"
	"github.com/hairocraft/callsync/internal/compress"
	"github.com/hairocraft/callsync/internal/config"
	"github.com/hairocraft/callsync/internal/matcher"
	st "github.com/hairocraft/callsync/internal/store"
	"github.com/hairocraft/callsync/internal/store/model"
	"github.com/hairocraft/callsync/internal/sync"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func TestSync(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sync Suite")
}

type stubSource struct {
	candidates []matcher.Candidate
}

func (s *stubSource) ListByTimeWindow(ctx context.Context, startMs, endMs int64) ([]matcher.Candidate, error) {
	return s.candidates, nil
}

type fakeCompressor struct {
	out string
	err error
}

func (f *fakeCompressor) Compress(ctx context.Context, inputPath string) (string, error) {
	return f.out, f.err
}

var _ compress.Compressor = (*fakeCompressor)(nil)

// testClock is a fixed time source tests can move forward.
type testClock struct {
	base     time.Time
	offsetMs atomic.Int64
}

func newTestClock() *testClock {
	return &testClock{base: time.Now()}
}

func (c *testClock) Now() time.Time {
	return c.base.Add(time.Duration(c.offsetMs.Load()) * time.Millisecond)
}

func (c *testClock) Advance(d time.Duration) {
	c.offsetMs.Add(d.Milliseconds())
}

var _ = Describe("Orchestrator", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
		ctx    context.Context
	)

	fastDelays := []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond}

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Path = filepath.Join(GinkgoT().TempDir(), "queue.db")

		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db, logrus.New())
		Expect(store.InitialMigration()).To(BeNil())

		ctx = context.TODO()
	})

	AfterAll(func() {
		store.Close()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM upload_queue;")
	})

	newOrchestrator := func(api client.Uploader, creds auth.CredentialProvider, source matcher.CandidateSource, clock *testClock) *sync.Orchestrator {
		phones := matcher.PhoneConfig{CountryCode: "60", TrunkPrefix: "0"}
		m := matcher.New(source, nil, phones)
		return sync.NewOrchestrator(
			store,
			sync.NewExecutor(api, creds),
			creds,
			m,
			phones,
			&fakeCompressor{},
			7*24*time.Hour,
			sync.WithClock(clock.Now),
			sync.WithSearchDelays(fastDelays),
		)
	}

	creds := &auth.StaticProvider{Bearer: "test-token"}

	event := func(ts int64) sync.CallEvent {
		return sync.CallEvent{
			PhoneNumber: "+60123456789",
			CallType:    model.CallTypeIncoming,
			DurationSec: 42,
			TimestampMs: ts,
			ContactName: "Alice",
		}
	}

	Context("call events", func() {
		It("queues a new event durably", func() {
			o := newOrchestrator(&client.UploaderMock{}, creds, &stubSource{}, newTestClock())

			job, created, err := o.HandleCallEvent(ctx, event(time.Now().UnixMilli()))
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())

			stored, err := store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusPending))
			Expect(stored.Kind).To(Equal(model.KindCallLog))
		})

		It("suppresses a duplicate report of the same call", func() {
			o := newOrchestrator(&client.UploaderMock{}, creds, &stubSource{}, newTestClock())
			ts := time.Now().UnixMilli()

			first, created, err := o.HandleCallEvent(ctx, event(ts))
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())

			second, created, err := o.HandleCallEvent(ctx, event(ts+500))
			Expect(err).To(BeNil())
			Expect(created).To(BeFalse())
			Expect(second.ClientUUID).To(Equal(first.ClientUUID))

			count, err := store.Queue().PendingCount(ctx)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(1)))
		})

		It("suppresses a duplicate reported in a different number format", func() {
			o := newOrchestrator(&client.UploaderMock{}, creds, &stubSource{}, newTestClock())
			ts := time.Now().UnixMilli()

			first, created, err := o.HandleCallEvent(ctx, event(ts))
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())

			// same call, but the second source spells the number locally
			ev := event(ts + 300)
			ev.PhoneNumber = "0123456789"
			second, created, err := o.HandleCallEvent(ctx, ev)
			Expect(err).To(BeNil())
			Expect(created).To(BeFalse())
			Expect(second.ClientUUID).To(Equal(first.ClientUUID))

			count, err := store.Queue().PendingCount(ctx)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Context("upload pass", func() {
		It("uploads a due call log and records the server id", func() {
			mock := &client.UploaderMock{
				UploadCallLogFunc: func(ctx context.Context, token, idempotencyKey string, callLog client.CallLog) (int64, error) {
					return 42, nil
				},
			}
			o := newOrchestrator(mock, creds, &stubSource{}, newTestClock())

			job, _, err := o.HandleCallEvent(ctx, event(time.Now().UnixMilli()))
			Expect(err).To(BeNil())

			Expect(o.RunDueJobs(ctx)).To(BeNil())
			o.WaitSearches()

			stored, err := store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusCompleted))
			Expect(stored.CallLogID).To(Equal(int64(42)))
			// nothing on disk matched, so the search ladder ran dry
			Expect(stored.NoRecordingFound).To(BeTrue())

			calls := mock.UploadCallLogCalls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Token).To(Equal("test-token"))
			Expect(calls[0].IdempotencyKey).To(Equal(job.ClientUUID))
			Expect(calls[0].CallLog.CallerNumber).To(Equal("+60123456789"))
		})

		It("never searches for recordings of missed calls", func() {
			mock := &client.UploaderMock{
				UploadCallLogFunc: func(ctx context.Context, token, idempotencyKey string, callLog client.CallLog) (int64, error) {
					return 42, nil
				},
			}
			o := newOrchestrator(mock, creds, &stubSource{}, newTestClock())

			ev := event(time.Now().UnixMilli())
			ev.CallType = model.CallTypeMissed
			ev.DurationSec = 0
			job, _, err := o.HandleCallEvent(ctx, ev)
			Expect(err).To(BeNil())

			Expect(o.RunDueJobs(ctx)).To(BeNil())
			o.WaitSearches()

			stored, err := store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusCompleted))
			Expect(stored.NoRecordingFound).To(BeFalse())

			_, err = store.Queue().GetRecordingByParentUUID(ctx, job.ClientUUID)
			Expect(err).To(Equal(st.ErrRecordNotFound))
		})

		It("applies the backoff ladder on retryable failures", func() {
			clock := newTestClock()
			mock := &client.UploaderMock{
				UploadCallLogFunc: func(ctx context.Context, token, idempotencyKey string, callLog client.CallLog) (int64, error) {
					return 0, errors.New("connection reset")
				},
			}
			o := newOrchestrator(mock, creds, &stubSource{}, clock)

			job, _, err := o.HandleCallEvent(ctx, event(clock.Now().UnixMilli()))
			Expect(err).To(BeNil())

			Expect(o.RunDueJobs(ctx)).To(BeNil())

			stored, err := store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusFailed))
			Expect(stored.Permanent).To(BeFalse())
			Expect(stored.RetryCount).To(Equal(1))
			Expect(stored.NextRetryAt).To(Equal(clock.Now().Add(time.Minute).UnixMilli()))

			// not due yet
			Expect(o.RunDueJobs(ctx)).To(BeNil())
			Expect(mock.UploadCallLogCalls()).To(HaveLen(1))

			// second failure doubles the delay
			clock.Advance(2 * time.Minute)
			Expect(o.RunDueJobs(ctx)).To(BeNil())

			stored, err = store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.RetryCount).To(Equal(2))
			Expect(stored.NextRetryAt).To(Equal(clock.Now().Add(2 * time.Minute).UnixMilli()))
			Expect(mock.UploadCallLogCalls()).To(HaveLen(2))
		})

		It("parks permanently rejected jobs", func() {
			mock := &client.UploaderMock{
				UploadCallLogFunc: func(ctx context.Context, token, idempotencyKey string, callLog client.CallLog) (int64, error) {
					return 0, &client.StatusError{Code: 422, Message: "bad payload"}
				},
			}
			clock := newTestClock()
			o := newOrchestrator(mock, creds, &stubSource{}, clock)

			job, _, err := o.HandleCallEvent(ctx, event(clock.Now().UnixMilli()))
			Expect(err).To(BeNil())

			Expect(o.RunDueJobs(ctx)).To(BeNil())

			stored, err := store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusFailed))
			Expect(stored.Permanent).To(BeTrue())

			// parked jobs never come due again
			clock.Advance(48 * time.Hour)
			Expect(o.RunDueJobs(ctx)).To(BeNil())
			Expect(mock.UploadCallLogCalls()).To(HaveLen(1))
		})

		It("retries after a server-side auth rejection once the session is restored", func() {
			clock := newTestClock()
			creds := &auth.StaticProvider{Bearer: "expired-token"}
			mock := &client.UploaderMock{
				UploadCallLogFunc: func(ctx context.Context, token, idempotencyKey string, callLog client.CallLog) (int64, error) {
					if token == "expired-token" {
						return 0, &client.StatusError{Code: 401, Message: "token expired"}
					}
					return 42, nil
				},
			}
			o := newOrchestrator(mock, creds, &stubSource{}, clock)

			job, _, err := o.HandleCallEvent(ctx, event(clock.Now().UnixMilli()))
			Expect(err).To(BeNil())

			Expect(o.RunDueJobs(ctx)).To(BeNil())

			// the rejection backs off but never parks the job
			stored, err := store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusFailed))
			Expect(stored.Permanent).To(BeFalse())
			Expect(stored.RetryCount).To(Equal(1))

			// the host re-authenticates out of band
			creds.Bearer = "fresh-token"
			clock.Advance(2 * time.Minute)
			Expect(o.RunDueJobs(ctx)).To(BeNil())
			o.WaitSearches()

			stored, err = store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusCompleted))
			Expect(stored.CallLogID).To(Equal(int64(42)))
			Expect(mock.UploadCallLogCalls()).To(HaveLen(2))
		})

		It("skips the whole pass without credentials", func() {
			mock := &client.UploaderMock{}
			o := newOrchestrator(mock, &auth.StaticProvider{}, &stubSource{}, newTestClock())

			job, _, err := o.HandleCallEvent(ctx, event(time.Now().UnixMilli()))
			Expect(err).To(BeNil())

			Expect(o.RunDueJobs(ctx)).To(BeNil())

			stored, err := store.Queue().GetByUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusPending))
			Expect(stored.LastAttemptAt).To(BeZero())
			Expect(mock.UploadCallLogCalls()).To(BeEmpty())
		})
	})

	Context("recording chain", func() {
		writeRecordingFile := func(ts int64) matcher.Candidate {
			path := filepath.Join(GinkgoT().TempDir(), "CallRecord_0123456789.m4a")
			Expect(os.WriteFile(path, []byte("not really audio"), 0644)).To(BeNil())
			return matcher.Candidate{
				Path:        path,
				DisplayName: "CallRecord_0123456789.m4a",
				Size:        44100,
				DateAddedMs: ts + 3_000,
				DurationMs:  43_000,
			}
		}

		It("matches, queues and uploads the recording of a completed call", func() {
			ts := time.Now().UnixMilli()
			candidate := writeRecordingFile(ts)

			mock := &client.UploaderMock{
				UploadCallLogFunc: func(ctx context.Context, token, idempotencyKey string, callLog client.CallLog) (int64, error) {
					return 42, nil
				},
				UploadRecordingFunc: func(ctx context.Context, token, idempotencyKey string, rec client.Recording) error {
					return nil
				},
			}
			o := newOrchestrator(mock, creds, &stubSource{candidates: []matcher.Candidate{candidate}}, newTestClock())

			job, _, err := o.HandleCallEvent(ctx, event(ts))
			Expect(err).To(BeNil())

			Expect(o.RunDueJobs(ctx)).To(BeNil())
			o.WaitSearches()

			var rec *model.UploadJob
			Eventually(func() model.JobStatus {
				rec, err = store.Queue().GetRecordingByParentUUID(ctx, job.ClientUUID)
				if err != nil {
					return ""
				}
				return rec.Status
			}, 2*time.Second, 10*time.Millisecond).Should(Equal(model.StatusCompleted))

			Expect(rec.CallLogID).To(Equal(int64(42)))
			Expect(rec.RecordingPath).To(Equal(candidate.Path))

			recCalls := mock.UploadRecordingCalls()
			Expect(recCalls).To(HaveLen(1))
			Expect(recCalls[0].IdempotencyKey).To(Equal("rec_" + job.ClientUUID))
			Expect(recCalls[0].Rec.CallLogID).To(Equal(int64(42)))
			Expect(recCalls[0].Rec.Checksum).ToNot(BeEmpty())
		})

		It("keeps the idempotency key stable across recording retries", func() {
			ts := time.Now().UnixMilli()
			candidate := writeRecordingFile(ts)
			clock := newTestClock()

			var recAttempts atomic.Int32
			mock := &client.UploaderMock{
				UploadCallLogFunc: func(ctx context.Context, token, idempotencyKey string, callLog client.CallLog) (int64, error) {
					return 42, nil
				},
				UploadRecordingFunc: func(ctx context.Context, token, idempotencyKey string, rec client.Recording) error {
					if recAttempts.Add(1) == 1 {
						return errors.New("connection reset")
					}
					return nil
				},
			}
			o := newOrchestrator(mock, creds, &stubSource{candidates: []matcher.Candidate{candidate}}, clock)

			job, _, err := o.HandleCallEvent(ctx, event(ts))
			Expect(err).To(BeNil())

			Expect(o.RunDueJobs(ctx)).To(BeNil())
			o.WaitSearches()

			Eventually(func() int32 {
				return recAttempts.Load()
			}, 2*time.Second, 10*time.Millisecond).Should(Equal(int32(1)))

			clock.Advance(2 * time.Minute)
			Expect(o.RunDueJobs(ctx)).To(BeNil())

			rec, err := store.Queue().GetRecordingByParentUUID(ctx, job.ClientUUID)
			Expect(err).To(BeNil())
			Expect(rec.Status).To(Equal(model.StatusCompleted))

			recCalls := mock.UploadRecordingCalls()
			Expect(recCalls).To(HaveLen(2))
			Expect(recCalls[0].IdempotencyKey).To(Equal(recCalls[1].IdempotencyKey))
			Expect(recCalls[0].IdempotencyKey).To(Equal("rec_" + job.ClientUUID))
		})

		It("parks a recording whose file vanished", func() {
			ts := time.Now().UnixMilli()
			job := model.NewCallLogJob("+60123456789", model.CallTypeIncoming, 42, ts, "", "", "", "")
			job.Status = model.StatusCompleted
			job.CallLogID = 42
			_, err := store.Queue().Create(ctx, job)
			Expect(err).To(BeNil())

			rec := model.NewRecordingJob(job.ClientUUID, 42, "+60123456789", ts, 42, "/no/such/file.m4a", nil, 44100)
			_, err = store.Queue().Create(ctx, rec)
			Expect(err).To(BeNil())

			mock := &client.UploaderMock{}
			o := newOrchestrator(mock, creds, &stubSource{}, newTestClock())

			Expect(o.RunDueJobs(ctx)).To(BeNil())

			stored, err := store.Queue().GetByUUID(ctx, rec.ClientUUID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.StatusFailed))
			Expect(stored.Permanent).To(BeTrue())
			Expect(mock.UploadRecordingCalls()).To(BeEmpty())
		})
	})
})
