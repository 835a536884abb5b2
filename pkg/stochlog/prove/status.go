package prove

import (
	"time"

	"go.uber.org/zap"
)

// DefaultStatusInterval is the minimum gap between progress lines.
const DefaultStatusInterval = 10 * time.Second

// StatusLogger rate-limits progress lines from long proofs. A nil
// *StatusLogger is valid and logs nothing.
type StatusLogger struct {
	logger   *zap.Logger
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewStatusLogger returns a logger that emits at most one progress line per
// interval. A nil logger means zap.NewNop().
func NewStatusLogger(logger *zap.Logger, interval time.Duration) *StatusLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return &StatusLogger{logger: logger, interval: interval, now: time.Now}
}

// Logger is the underlying logger, or a no-op logger for a nil receiver.
func (s *StatusLogger) Logger() *zap.Logger {
	if s == nil {
		return zap.NewNop()
	}
	return s.logger
}

// Start resets the interval clock at the beginning of a proof.
func (s *StatusLogger) Start() {
	if s == nil {
		return
	}
	s.last = s.now()
}

// Due reports whether a progress line would be emitted now.
func (s *StatusLogger) Due() bool {
	return s != nil && s.now().Sub(s.last) >= s.interval
}

// Progress logs iterations, nodes and residual if the interval has passed.
func (s *StatusLogger) Progress(prover string, iterations, nodes int, residual float64) {
	if !s.Due() {
		return
	}
	s.last = s.now()
	s.logger.Info("proving",
		zap.String("prover", prover),
		zap.Int("iterations", iterations),
		zap.Int("nodes", nodes),
		zap.Float64("residual", residual))
}

// Bound records that a prover stopped at a limit rather than converging.
func (s *StatusLogger) Bound(prover, limit string, value int) {
	s.Logger().Debug("prover bound reached",
		zap.String("prover", prover),
		zap.String("limit", limit),
		zap.Int("value", value))
}
