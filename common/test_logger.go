package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

type testLoggerHook struct {
	t *testing.T
}

func (h *testLoggerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *testLoggerHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	h.t.Log(line)
	return nil
}

// NewTestLogger returns a logrus logger that routes into testing.T, so
// that log output only surfaces for failed tests.
func NewTestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.Out = nullWriter{}
	logger.Level = logrus.DebugLevel
	logger.Hooks.Add(&testLoggerHook{t: t})
	return logger
}

// NewTestEntry returns a test logger pre-tagged with an id field.
func NewTestEntry(t *testing.T, id string) *logrus.Entry {
	return NewTestLogger(t).WithField("id", id)
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
