package encapsuler

import (
	"time"

	"flashrec/pkg/log"
)

type options struct {
	logger     *log.Logger
	frameLimit int
	syncIndex  bool
	now        func() time.Time
}

func defaultOptions() options {
	return options{
		frameLimit: DefaultFrameLimit,
		syncIndex:  true,
		now:        time.Now,
	}
}

// Option configures a recording or a recovery.
type Option func(*options)

// WithLogger logs through logger. The logger must be started.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFrameLimit sets the maximum number of frames. Values
// below one are ignored.
func WithFrameLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.frameLimit = limit
		}
	}
}

// WithIndexSync controls whether every frame is flushed to stable
// storage before AddSlice returns. Disabling it trades crash
// safety for throughput.
func WithIndexSync(sync bool) Option {
	return func(o *options) {
		o.syncIndex = sync
	}
}

// WithClock sets the source of the creation time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func (o *options) logf(level log.Level, path string, format string, v ...interface{}) {
	if o.logger == nil {
		return
	}

	var e *log.Event
	switch level {
	case log.LevelError:
		e = o.logger.Error()
	case log.LevelWarning:
		e = o.logger.Warn()
	case log.LevelInfo:
		e = o.logger.Info()
	default:
		e = o.logger.Debug()
	}
	e.Src("encapsuler").Recording(path).Msgf(format, v...)
}
