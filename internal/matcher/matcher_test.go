package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	candidates []Candidate
	err        error
	calls      int
}

func (s *stubSource) ListByTimeWindow(ctx context.Context, startMs, endMs int64) ([]Candidate, error) {
	s.calls++
	return s.candidates, s.err
}

const callTs = int64(1_700_000_000_000)

func TestScoreStrongMatch(t *testing.T) {
	// A recorder file named after the number, created seconds after the
	// call, with matching duration and a plausible size.
	c := Candidate{
		DisplayName: "CallRecord_0123456789_20240101.m4a",
		Size:        44100,
		DateAddedMs: callTs + 3_000,
		DurationMs:  43_000,
	}

	score := Score(c, myPhones, "+60123456789", callTs, 42, "")

	// phone 60 + duration 40 + proximity 50 + size 10 + keyword 15 + plausible size 10
	assert.Equal(t, 185, score)
	assert.GreaterOrEqual(t, score, ThresholdAutoSelect)
}

func TestScoreContactName(t *testing.T) {
	c := Candidate{
		DisplayName: "Ahmad Faizal.m4a",
		Size:        44100,
		DateAddedMs: callTs + 3_000,
	}

	withName := Score(c, myPhones, "+60123456789", callTs, 42, "Ahmad Faizal")
	without := Score(c, myPhones, "+60123456789", callTs, 42, "")
	assert.Equal(t, 45, withName-without)

	// "Unknown" is the placeholder for an unresolved contact, never a match.
	unknown := Score(c, myPhones, "+60123456789", callTs, 42, "Unknown")
	assert.Equal(t, without, unknown)
}

func TestScoreIsDeterministic(t *testing.T) {
	c := Candidate{
		DisplayName: "rec_60123456789.mp3",
		Size:        90_000,
		DateAddedMs: callTs + 55_000,
		DurationMs:  40_000,
	}
	first := Score(c, myPhones, "+60123456789", callTs, 42, "Alice")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(c, myPhones, "+60123456789", callTs, 42, "Alice"))
	}
}

func TestFindBestMatchAutoSelect(t *testing.T) {
	index := &stubSource{candidates: []Candidate{
		{
			Path:        "/sdcard/Call/CallRecord_0123456789.m4a",
			DisplayName: "CallRecord_0123456789.m4a",
			Size:        44100,
			DateAddedMs: callTs + 3_000,
			DurationMs:  43_000,
		},
		{
			Path:        "/sdcard/Music/music_track.mp3",
			DisplayName: "music_track.mp3",
			Size:        5_000_000,
			DateAddedMs: callTs + 250_000,
		},
	}}
	m := New(index, nil, myPhones)

	match, err := m.FindBestMatch(context.Background(), "+60123456789", callTs, 42, "")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "CallRecord_0123456789.m4a", match.Candidate.DisplayName)
	assert.False(t, match.ReviewGrade)
}

func TestFindBestMatchReviewGrade(t *testing.T) {
	index := &stubSource{candidates: []Candidate{
		{
			Path:        "/sdcard/Recordings/voice_note.m4a",
			DisplayName: "voice_note.m4a",
			Size:        20_000,
			DateAddedMs: callTs + 45_000,
		},
	}}
	m := New(index, nil, myPhones)

	match, err := m.FindBestMatch(context.Background(), "+60123456789", callTs, 42, "")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.True(t, match.ReviewGrade)
}

func TestFindBestMatchRejectsWeakCandidates(t *testing.T) {
	index := &stubSource{candidates: []Candidate{
		{
			Path:        "/sdcard/Music/music_track.mp3",
			DisplayName: "music_track.mp3",
			Size:        5_000_000,
			DateAddedMs: callTs + 250_000,
		},
	}}
	m := New(index, nil, myPhones)

	match, err := m.FindBestMatch(context.Background(), "+60123456789", callTs, 42, "")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestFindBestMatchTieBreaksOnNewerFile(t *testing.T) {
	older := Candidate{
		Path:        "/sdcard/Call/CallRecord_0123456789_a.m4a",
		DisplayName: "CallRecord_0123456789_a.m4a",
		Size:        44100,
		DateAddedMs: callTs + 3_000,
		DurationMs:  43_000,
	}
	newer := older
	newer.Path = "/sdcard/Call/CallRecord_0123456789_b.m4a"
	newer.DisplayName = "CallRecord_0123456789_b.m4a"
	newer.DateAddedMs = callTs + 5_000

	index := &stubSource{candidates: []Candidate{older, newer}}
	m := New(index, nil, myPhones)

	match, err := m.FindBestMatch(context.Background(), "+60123456789", callTs, 42, "")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, newer.Path, match.Candidate.Path)
}

func TestFindBestMatchFallsBackToScanner(t *testing.T) {
	index := &stubSource{}
	scanner := &stubSource{candidates: []Candidate{
		{
			Path:        "/sdcard/Call/CallRecord_0123456789.m4a",
			DisplayName: "CallRecord_0123456789.m4a",
			Size:        44100,
			DateAddedMs: callTs + 3_000,
			DurationMs:  43_000,
		},
	}}
	m := New(index, scanner, myPhones)

	match, err := m.FindBestMatch(context.Background(), "+60123456789", callTs, 42, "")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 1, index.calls)
	assert.Equal(t, 1, scanner.calls)
}
