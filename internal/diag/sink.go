package diag

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink is the trace/verbose logging channel, separate from the error
// channel: a Sink never carries a fatal diagnostic, it only narrates phase
// progress (verbose mode, --trace, plugin lifecycle events) the way the
// teacher's VerboseMode-gated fmt.Fprintf(os.Stderr, ...) calls in
// plt_got.go did, generalized to structured logging.
type Sink struct {
	logger  *zap.Logger
	failed  atomic.Bool
	verbose bool
}

// NewSink builds a Sink. When verbose is false the underlying logger only
// emits Warn and above, matching the teacher's VerboseMode gate.
func NewSink(verbose bool) *Sink {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &Sink{logger: logger, verbose: verbose}
}

func (s *Sink) Verbosef(format string, args ...any) {
	if s.verbose {
		s.logger.Sugar().Debugf(format, args...)
	}
}

func (s *Sink) Trace(phase string, fields ...zap.Field) {
	s.logger.Debug(phase, fields...)
}

// Report records a diagnostic on the sink's log stream and, if it is fatal,
// latches the module-wide failure flag (§5 Cancellation: "A fatal diagnostic
// sets a module-wide failure flag; workers check it between sections and
// drain cleanly").
func (s *Sink) Report(e *Entry) {
	switch e.Kind {
	case Fatal, InternalError:
		s.failed.Store(true)
		s.logger.Error(e.Error())
	case CriticalWarning, Error:
		s.logger.Warn(e.Error())
	case Warning:
		s.logger.Warn(e.Error())
	default:
		s.logger.Info(e.Error())
	}
}

// Failed reports whether a fatal diagnostic has been recorded. Workers
// poll this between sections; the driver checks it after joining a phase.
func (s *Sink) Failed() bool {
	return s.failed.Load()
}

func (s *Sink) Sync() {
	_ = s.logger.Sync()
}
