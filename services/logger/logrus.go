package logsvc

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/user"
)

// NewLogrus builds the process logger: JSON in staging and production, text elsewhere.
func NewLogrus(conf *core.Config, out ...io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if len(out) > 0 {
		log.SetOutput(out[0])
	}

	level, err := logrus.ParseLevel(strings.ToLower(conf.LogLevel))
	if err != nil {
		log.Warnf("invalid log level %q, defaulting to info", conf.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch conf.Env {
	case "STAGING", "PROD":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
	return log
}

// fields turns logger args into logrus fields.
// expected args: error, map[string]interface{}, user.Principal
func fields(args []interface{}) logrus.Fields {
	f := make(logrus.Fields)
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			f[logrus.ErrorKey] = a
		case map[string]interface{}:
			for k, v := range a {
				f[k] = v
			}
		case user.Principal:
			if a.UserID != "" {
				f["user_id"] = a.UserID
			}
			f["user_role"] = a.Role
		}
	}
	return f
}

// LogrusLogger logs to a logrus.Logger only.
type LogrusLogger struct {
	log *logrus.Logger
}

var _ core.Logger = (*LogrusLogger)(nil)

func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{log: log}
}

func (l LogrusLogger) Debug(msg string, args ...interface{}) {
	l.log.WithFields(fields(args)).Debug(msg)
}

func (l LogrusLogger) Info(msg string, args ...interface{}) {
	l.log.WithFields(fields(args)).Info(msg)
}

func (l LogrusLogger) Warn(msg string, args ...interface{}) {
	l.log.WithFields(fields(args)).Warn(msg)
}

func (l LogrusLogger) Error(msg string, args ...interface{}) {
	l.log.WithFields(fields(args)).Error(msg)
}

func (l LogrusLogger) Fatal(msg string, args ...interface{}) {
	l.log.WithFields(fields(args)).Fatal(msg)
}

// NewNopLogger discards everything. Used in tests.
func NewNopLogger() *LogrusLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &LogrusLogger{log: log}
}
