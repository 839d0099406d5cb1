package config

import (
	"path/filepath"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Logger returns the configured logger, building it on first use: a
// prefixed console formatter plus a file hook shipping json lines into
// the data directory.
func (c *Config) Logger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)

		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.DataDir != "" {
			path := filepath.Join(c.DataDir, "continuity.log")
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: path,
					logrus.InfoLevel:  path,
					logrus.WarnLevel:  path,
					logrus.ErrorLevel: path,
					logrus.FatalLevel: path,
					logrus.PanicLevel: path,
				},
				new(logrus.JSONFormatter),
			))
		}
	}
	return c.logger
}

// WithLogger overrides the configured logger, for tests.
func (c *Config) WithLogger(logger *logrus.Logger) *Config {
	c.logger = logger
	return c
}

// LogLevel parses a level name, defaulting to debug.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
