package sync

import "time"

// Retry ladder for failed uploads. Grows roughly exponentially and caps at
// a day so a long outage does not push jobs arbitrarily far into the
// future.
var backoffLadder = []time.Duration{
	1 * time.Minute,
	2 * time.Minute,
	4 * time.Minute,
	8 * time.Minute,
	16 * time.Minute,
	30 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

// BackoffDelay returns the wait before the next attempt given how many
// attempts have already failed.
func BackoffDelay(failedAttempts int) time.Duration {
	if failedAttempts < 0 {
		failedAttempts = 0
	}
	if failedAttempts >= len(backoffLadder) {
		return backoffLadder[len(backoffLadder)-1]
	}
	return backoffLadder[failedAttempts]
}

// Delays between recording search attempts after a call log completes.
// Recordings usually land on disk within seconds of the call ending, so the
// first attempt fires fast and later ones stretch out.
var defaultSearchDelays = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	40 * time.Second,
}
