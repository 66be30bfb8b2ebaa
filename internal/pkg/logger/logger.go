package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"crm-agent-pipeline/internal/config"
)

// Fields is re-exported so callers don't import logrus directly.
type Fields = logrus.Fields

// Logger wraps logrus with variadic key/value logging plus helpers for the
// service/agent/workflow log shapes used across the pipeline.
type Logger struct {
	log *logrus.Logger
}

func New(cfg config.LogConfig) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	log.SetOutput(resolveOutput(cfg.Output))

	return &Logger{log: log}, nil
}

func resolveOutput(output string) io.Writer {
	switch output {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		// Anything else is a file path; rotate so long-running deployments
		// don't fill the disk.
		return &lumberjack.Logger{
			Filename:   output,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairFields(keysAndValues)).Debug(msg)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairFields(keysAndValues)).Info(msg)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairFields(keysAndValues)).Warn(msg)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairFields(keysAndValues)).Error(msg)
}

func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.log.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.log.WithError(err)
}

// LogService records one external-service operation with its duration.
func (l *Logger) LogService(service, operation string, duration time.Duration, details map[string]interface{}, err error) {
	entry := l.log.WithFields(Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if details != nil {
		entry = entry.WithFields(Fields(details))
	}

	if err != nil {
		entry.WithError(err).Error("service operation failed")
		return
	}
	entry.Debug("service operation completed")
}

// LogAgent records one agent operation, tagged with the owning workflow.
func (l *Logger) LogAgent(workflowID, agent, operation string, duration time.Duration, details map[string]interface{}, err error) {
	entry := l.log.WithFields(Fields{
		"workflow_id": workflowID,
		"agent":       agent,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if details != nil {
		entry = entry.WithFields(Fields(details))
	}

	if err != nil {
		entry.WithError(err).Error("agent operation failed")
		return
	}
	entry.Info("agent operation completed")
}

// LogWorkflow records a workflow lifecycle event.
func (l *Logger) LogWorkflow(workflowID, userID, event string, duration time.Duration, err error) {
	entry := l.log.WithFields(Fields{
		"workflow_id": workflowID,
		"user_id":     userID,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("workflow event")
		return
	}
	entry.Info("workflow event")
}

// pairFields converts a variadic key/value list into logrus fields. An odd
// trailing value is kept under "extra" rather than dropped.
func pairFields(keysAndValues []interface{}) Fields {
	fields := Fields{}

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}

	if len(keysAndValues)%2 != 0 {
		fields["extra"] = keysAndValues[len(keysAndValues)-1]
	}

	return fields
}
