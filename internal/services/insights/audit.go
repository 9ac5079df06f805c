// -----------------------------------------------------------------------
// Model Audit - JSONL trail of every provider call
// -----------------------------------------------------------------------

package insights

import (
	"io"
	"time"

	"github.com/phuslu/log"
)

// AuditLogger appends one JSON line per model interaction so that
// provider behavior can be replayed and billed after the fact.
type AuditLogger struct {
	logger log.Logger
}

// NewAuditLogger creates an audit logger writing to the given JSONL file.
// An empty filename disables auditing.
func NewAuditLogger(filename string) *AuditLogger {
	if filename == "" {
		return &AuditLogger{logger: log.Logger{Writer: log.IOWriter{Writer: io.Discard}}}
	}
	return &AuditLogger{
		logger: log.Logger{
			Level:      log.InfoLevel,
			TimeField:  "timestamp",
			TimeFormat: time.RFC3339,
			Writer: &log.FileWriter{
				Filename:   filename,
				MaxSize:    50 * 1024 * 1024,
				MaxBackups: 5,
				LocalTime:  false,
			},
		},
	}
}

// Record appends one audit entry
func (a *AuditLogger) Record(provider, model, operation string, success bool, elapsed time.Duration, promptHash string, err error) {
	if a == nil {
		return
	}
	e := a.logger.Info().
		Str("provider", provider).
		Str("model", model).
		Str("operation", operation).
		Bool("success", success).
		Int64("duration_ms", elapsed.Milliseconds()).
		Str("prompt_hash", promptHash)
	if err != nil {
		e = e.Str("error", err.Error())
	}
	e.Msg("model_call")
}
