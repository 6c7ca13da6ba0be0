package domain

// WatcherPhase is the coarse state of the poll loop.
type WatcherPhase string

const (
	WatcherPhaseStopped  WatcherPhase = "stopped"
	WatcherPhaseStarting WatcherPhase = "starting"
	WatcherPhasePolling  WatcherPhase = "polling"
	WatcherPhaseBackoff  WatcherPhase = "backoff"
)

// WatcherState is a point-in-time snapshot of the poll loop. The cursor is
// monotonically non-decreasing for the lifetime of a watcher instance.
type WatcherState struct {
	LastProcessedLedger uint32       `json:"last_processed_ledger"`
	IsRunning           bool         `json:"is_running"`
	ErrorCount          int          `json:"error_count"`
	LastError           string       `json:"last_error,omitempty"`
	Phase               WatcherPhase `json:"phase"`
}
