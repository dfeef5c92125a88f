package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds the process-wide logger. Local environments get a readable
// console format; everything else logs JSON for ingestion.
func New() *logrus.Entry {
	base := logrus.New()

	env := os.Getenv("ENVIRONMENT")
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(os.Stdout)

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "warn":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}

	return logrus.NewEntry(base)
}

// Discard returns a logger that drops everything. Used by tests and as the
// default when a component is constructed without one.
func Discard() *logrus.Entry {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(base)
}
