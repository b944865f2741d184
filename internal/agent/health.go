package agent

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/hairocraft/callsync/internal/client"
	"go.uber.org/zap"
)

type HealthState int

const (
	HealthStateUnreachable HealthState = iota
	HealthStateReachable
)

const (
	healthLogFilename  = "health.log"
	healthProbeTimeout = 5 * time.Second
)

// HealthChecker probes the upload service periodically and logs the result
// into a file. Every failure is logged but only the first success after an
// outage, to not pollute the log file. For example:
//
// [2026-08-27T15:54:03+08:00] upload service is OK.
// [2026-08-27T15:54:09+08:00] upload service is unreachable.
// [2026-08-27T15:54:11+08:00] upload service is unreachable.
// [2026-08-27T15:54:15+08:00] upload service is OK.
type HealthChecker struct {
	once          sync.Once
	lock          sync.Mutex
	state         HealthState
	checkInterval time.Duration
	api           client.Uploader
	logFilepath   string
	logFile       *os.File
	// onReachable fires on every unreachable to reachable transition, so
	// the sync engine can flush the queue the moment connectivity returns.
	onReachable func()
}

func NewHealthChecker(api client.Uploader, logFolder string, checkInterval time.Duration, onReachable func()) (*HealthChecker, error) {
	logFile := path.Join(logFolder, healthLogFilename)
	if _, err := os.Stat(logFolder); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("log folder %s does not exists", logFolder)
		}
		return nil, fmt.Errorf("failed to stat the log folder %s: %w", logFolder, err)
	}
	// At each start we want a clean file so try to remove it
	if err := os.Remove(logFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to delete the existing log file %w", err)
		}
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s for append %w", logFile, err)
	}
	return &HealthChecker{
		state:         HealthStateUnreachable,
		checkInterval: checkInterval,
		api:           api,
		logFilepath:   logFile,
		logFile:       f,
		onReachable:   onReachable,
	}, nil
}

// Start launches the periodic probe.
//
// closeCh is the channel used to close the goroutine.
func (h *HealthChecker) Start(ctx context.Context, closeCh chan chan any) {
	h.once.Do(func() {
		h.do(ctx)

		ticker := time.NewTicker(h.checkInterval)
		go func() {
			defer ticker.Stop()
			defer h.logFile.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case c := <-closeCh:
					close(c)
					return
				case <-ticker.C:
					h.do(ctx)
				}
			}
		}()
	})
}

func (h *HealthChecker) State() HealthState {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.state
}

func (h *HealthChecker) do(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	err := h.api.Health(ctx)
	if err != nil {
		if _, err := h.logFile.Write([]byte(fmt.Sprintf("[%s] upload service is unreachable.\n", time.Now().Format(time.RFC3339)))); err != nil {
			zap.S().Named("health").Errorf("failed to write to log file %s %v", h.logFilepath, err)
		}
		h.lock.Lock()
		h.state = HealthStateUnreachable
		h.lock.Unlock()
		return
	}

	// if state changed from unreachable to ok log the entry
	wasUnreachable := h.State() == HealthStateUnreachable
	if wasUnreachable {
		if _, err := h.logFile.Write([]byte(fmt.Sprintf("[%s] upload service is OK.\n", time.Now().Format(time.RFC3339)))); err != nil {
			zap.S().Named("health").Errorf("failed to write to log file %s %v", h.logFilepath, err)
		}
	}
	h.lock.Lock()
	h.state = HealthStateReachable
	h.lock.Unlock()

	if wasUnreachable && h.onReachable != nil {
		h.onReachable()
	}
}
