package logger

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Init configures the global logrus instance. The verbosity count maps to
// info (0), debug (1), and trace (2+). When logFilePath is non-empty, output
// is mirrored to a size-rotated log file.
func Init(verbosity int, logFilePath string) {
	logrus.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceFormatting: true,
	})

	switch {
	case verbosity >= 2:
		logrus.SetLevel(logrus.TraceLevel)
	case verbosity == 1:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	if logFilePath != "" {
		logrus.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    25,
			MaxBackups: 3,
		}))
	}
}

// GetLogger returns a component-scoped log entry.
func GetLogger(prefix string) *logrus.Entry {
	return logrus.WithField("prefix", prefix)
}
