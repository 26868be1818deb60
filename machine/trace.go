package machine

import "github.com/rs/zerolog"

// ZerologTrace adapts a zerolog.Logger to TraceSink, logging each formatted
// trace line at Info level. Construction is left to the caller (main.go)
// so the console writer, time format and verbosity gate live in one place.
type ZerologTrace struct {
	log zerolog.Logger
}

// NewZerologTrace wraps log as a TraceSink.
func NewZerologTrace(log zerolog.Logger) ZerologTrace {
	return ZerologTrace{log: log}
}

func (z ZerologTrace) Trace(format string, args ...any) {
	z.log.Info().Msgf(format, args...)
}
