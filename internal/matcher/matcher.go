package matcher

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Scoring thresholds. A best candidate at or above the auto-select
// threshold is trusted outright; between review and auto-select it is
// still returned but flagged review-grade; below review it is rejected.
const (
	ThresholdAutoSelect = 80
	ThresholdReview     = 50
)

// Scoring weights. Signals are independent and additive.
const (
	scoreExactPhoneMatch  = 60
	scoreContactNameMatch = 45
	scoreDurationExact    = 40
	scoreDurationClose    = 20
	scoreCreatedWithin10s = 50
	scoreCreatedWithin60s = 30
	scoreCreatedWithin2m  = 15
	scoreCreatedWithin5m  = 5
	scoreFileSizeOK       = 10
	scoreCallKeywords     = 15
	scoreSizePlausible    = 10
)

// Window around the call inside which a recording file can plausibly have
// been created.
const (
	windowBeforeMs = 120 * 1000
	windowAfterMs  = 300 * 1000
)

var callKeywords = []string{"call", "record", "voice", "incoming", "outgoing", "rec_"}

// Match is the selected recording for a call.
type Match struct {
	Candidate Candidate
	// ReviewGrade marks a match that cleared only the lower confidence
	// threshold.
	ReviewGrade bool
}

// Matcher selects at most one best-matching audio file for a completed
// call, or declares that none exists.
type Matcher struct {
	index   CandidateSource
	scanner CandidateSource
	phones  PhoneConfig
	log     *zap.SugaredLogger
}

func New(index, scanner CandidateSource, phones PhoneConfig) *Matcher {
	return &Matcher{
		index:   index,
		scanner: scanner,
		phones:  phones,
		log:     zap.S().Named("matcher"),
	}
}

// FindBestMatch scores every candidate in the search window and returns the
// winner, or nil when nothing clears the confidence thresholds.
func (m *Matcher) FindBestMatch(ctx context.Context, phoneNumber string, callTimestampMs, callDurationSec int64, contactName string) (*Match, error) {
	startMs := callTimestampMs - windowBeforeMs
	endMs := callTimestampMs + callDurationSec*1000 + windowAfterMs

	candidates, err := m.index.ListByTimeWindow(ctx, startMs, endMs)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 && m.scanner != nil {
		m.log.Debugf("media index empty for window, falling back to directory scan")
		candidates, err = m.scanner.ListByTimeWindow(ctx, startMs, endMs)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		m.log.Debugf("no recording candidates for %s at %d", phoneNumber, callTimestampMs)
		return nil, nil
	}

	for i := range candidates {
		candidates[i].Score = Score(candidates[i], m.phones, phoneNumber, callTimestampMs, callDurationSec, contactName)
	}
	// Highest score first; on ties prefer the newer file.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DateAddedMs > candidates[j].DateAddedMs
	})

	best := candidates[0]
	switch {
	case best.Score >= ThresholdAutoSelect:
		m.log.Debugf("auto-selected %s (score %d)", best.DisplayName, best.Score)
		return &Match{Candidate: best}, nil
	case best.Score >= ThresholdReview:
		m.log.Infof("accepting review-grade match %s (score %d)", best.DisplayName, best.Score)
		return &Match{Candidate: best, ReviewGrade: true}, nil
	default:
		m.log.Debugf("rejected best candidate %s (score %d)", best.DisplayName, best.Score)
		return nil, nil
	}
}

// Score computes the match score of one candidate. Pure function of its
// inputs.
func Score(c Candidate, phones PhoneConfig, phoneNumber string, callTimestampMs, callDurationSec int64, contactName string) int {
	score := 0
	fileName := strings.ToLower(c.DisplayName)

	if phoneNumber != "" && phones.FilenameContainsNumber(fileName, phoneNumber) {
		score += scoreExactPhoneMatch
	}

	if contactName != "" && !strings.EqualFold(contactName, "Unknown") {
		cleanContact := keepAlnum(strings.ToLower(contactName))
		cleanFile := keepAlnum(fileName)
		if cleanContact != "" && cleanFile != "" &&
			(strings.Contains(cleanFile, cleanContact) || strings.Contains(cleanContact, cleanFile)) {
			score += scoreContactNameMatch
		}
	}

	if c.DurationMs > 0 && callDurationSec > 0 {
		diff := abs(c.DurationMs/1000 - callDurationSec)
		if diff <= 5 {
			score += scoreDurationExact
		} else if diff <= 10 {
			score += scoreDurationClose
		}
	}

	// dateAdded is more reliable than dateModified for freshly created
	// files; fall back when the source has no added time.
	fileTs := c.DateAddedMs
	if fileTs == 0 {
		fileTs = c.DateModifiedMs
	}
	switch diffSec := abs(fileTs-callTimestampMs) / 1000; {
	case diffSec <= 10:
		score += scoreCreatedWithin10s
	case diffSec <= 60:
		score += scoreCreatedWithin60s
	case diffSec <= 120:
		score += scoreCreatedWithin2m
	case diffSec <= 300:
		score += scoreCreatedWithin5m
	}

	if c.Size > 10*1024 {
		score += scoreFileSizeOK
	}

	for _, keyword := range callKeywords {
		if strings.Contains(fileName, keyword) {
			score += scoreCallKeywords
			break
		}
	}

	if callDurationSec > 0 {
		// Rough bitrate envelope from AMR (~0.3 KB/s) up to MP3 (~3 KB/s).
		minExpected := callDurationSec * 300
		maxExpected := callDurationSec * 3000
		if c.Size >= minExpected && c.Size <= maxExpected {
			score += scoreSizePlausible
		}
	}

	return score
}

func keepAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
