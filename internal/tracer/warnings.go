package tracer

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// WarningKind enumerates the locally-recovered failure classes. Each one
// means a log, swap or lookup was skipped or degraded without aborting the
// transaction's analysis.
type WarningKind string

const (
	WarnDecodeFailure     WarningKind = "decode_failure"
	WarnInvalidSwapDeltas WarningKind = "invalid_swap_deltas"
	WarnUnresolvedPool    WarningKind = "unresolved_pool"
	WarnLookupFailure     WarningKind = "lookup_failure"
	WarnPriceFallback     WarningKind = "price_fallback"
	WarnLowConfidence     WarningKind = "low_confidence"
)

// Warning is one structured diagnostic attached to a Report.
type Warning struct {
	Kind     WarningKind
	LogIndex uint
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s (log %d): %s", w.Kind, w.LogIndex, w.Message)
}

// diagnostics accumulates warnings during one transaction's analysis and
// mirrors them to the component logger. Safe for concurrent use: the context
// lookups fan out as goroutines and may warn concurrently.
type diagnostics struct {
	mu       sync.Mutex
	warnings []Warning
	logger   zerolog.Logger
}

func (d *diagnostics) warnf(kind WarningKind, logIndex uint, format string, args ...interface{}) {
	w := Warning{Kind: kind, LogIndex: logIndex, Message: fmt.Sprintf(format, args...)}
	d.mu.Lock()
	d.warnings = append(d.warnings, w)
	d.mu.Unlock()
	d.logger.Warn().
		Str("kind", string(w.Kind)).
		Uint("log_index", w.LogIndex).
		Msg(w.Message)
}

// list snapshots the collected warnings.
func (d *diagnostics) list() []Warning {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Warning(nil), d.warnings...)
}
