package sync

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/hairocraft/callsync/internal/matcher"
	"github.com/hairocraft/callsync/internal/store"
	"github.com/hairocraft/callsync/internal/store/model"
	"github.com/hairocraft/callsync/pkg/metrics"
)

// scheduleRecordingSearch starts the background search for the recording of
// a just-uploaded call log. At most one search runs per call.
func (o *Orchestrator) scheduleRecordingSearch(ctx context.Context, parent model.UploadJob) {
	key := "search:" + parent.ClientUUID
	if !o.acquire(key) {
		return
	}
	o.searchWG.Add(1)
	go func() {
		defer o.searchWG.Done()
		defer o.release(key)
		o.searchRecording(ctx, parent)
	}()
}

// searchRecording walks the search ladder: wait, look for a match, repeat.
// The delays stretch out because OEM recorders write the file asynchronously
// and some only flush it well after the call ends.
func (o *Orchestrator) searchRecording(ctx context.Context, parent model.UploadJob) {
	queue := o.store.Queue()

	for attempt, delay := range o.searchDelays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if _, err := queue.GetRecordingByParentUUID(ctx, parent.ClientUUID); err == nil {
			// A previous attempt or process already queued one.
			return
		}

		match, err := o.matcher.FindBestMatch(ctx, parent.PhoneNumber, parent.CallTimestamp,
			parent.CallDuration, parent.ContactName)
		if err != nil {
			o.log.Warnf("recording search attempt %d for %s failed: %v", attempt+1, parent.ClientUUID, err)
			continue
		}
		if match == nil {
			o.log.Debugf("recording search attempt %d/%d for %s found nothing",
				attempt+1, len(o.searchDelays), parent.ClientUUID)
			continue
		}

		if err := o.enqueueRecording(ctx, &parent, match); err != nil {
			o.log.Errorf("failed to queue recording for %s: %v", parent.ClientUUID, err)
			return
		}
		metrics.IncreaseRecordingSearchesTotalMetric("matched")
		return
	}

	metrics.IncreaseRecordingSearchesTotalMetric("exhausted")
	o.log.Infof("no recording found for call %s after %d attempts", parent.ClientUUID, len(o.searchDelays))
	if err := queue.SetNoRecordingFound(ctx, parent.ClientUUID); err != nil {
		o.log.Warnf("failed to record search exhaustion for %s: %v", parent.ClientUUID, err)
	}
}

// enqueueRecording compresses the matched file when worthwhile and queues
// its upload job, then kicks a sync pass so the upload starts immediately.
func (o *Orchestrator) enqueueRecording(ctx context.Context, parent *model.UploadJob, match *matcher.Match) error {
	queue := o.store.Queue()
	candidate := match.Candidate

	// Another process may have matched this call between our ladder check
	// and now.
	if _, err := queue.FindInWindow(ctx, model.KindRecording, parent.PhoneNumber,
		parent.CallTimestamp-dedupWindowMs, parent.CallTimestamp+dedupWindowMs); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return err
	}

	var compressedPath *string
	if o.compressor != nil {
		out, err := o.compressor.Compress(ctx, candidate.Path)
		switch {
		case err != nil:
			o.log.Warnf("compression of %s failed, uploading original: %v", candidate.Path, err)
		case out == "":
			// Already compact enough.
		default:
			if info, statErr := os.Stat(out); statErr == nil && info.Size() < candidate.Size {
				compressedPath = &out
			} else {
				// Transcoding did not actually shrink it.
				_ = os.Remove(out)
			}
		}
	}

	job := model.NewRecordingJob(parent.ClientUUID, parent.CallLogID, parent.PhoneNumber,
		parent.CallTimestamp, parent.CallDuration, candidate.Path, compressedPath, candidate.Size)
	if _, err := queue.Create(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil
		}
		return err
	}

	grade := ""
	if match.ReviewGrade {
		grade = ", review grade"
	}
	o.log.Infof("queued recording %s for call %s (score %d%s)",
		candidate.DisplayName, parent.ClientUUID, candidate.Score, grade)

	o.TriggerSync(ctx)
	return nil
}
