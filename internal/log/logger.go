// Package log configures the process-wide logrus logger and hands out
// per-module entries.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000"

// Setup configures the standard logger. level is a logrus level name
// ("debug", "info", ...).
func Setup(level string, jsonFormat, colorFormat bool) error {
	return SetupWriter(os.Stderr, level, jsonFormat, colorFormat)
}

// SetupWriter is Setup with an explicit output.
func SetupWriter(w io.Writer, level string, jsonFormat, colorFormat bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetOutput(w)
	logrus.SetLevel(lvl)
	if jsonFormat {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:     colorFormat,
			DisableColors:   !colorFormat,
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
			DisableSorting:  true,
		})
	}
	return nil
}

// Module returns an entry tagged with the given module name.
func Module(name string) *logrus.Entry {
	return logrus.WithField("module", name)
}

// Fields builds a field set from alternating key/value pairs.
func Fields(ctx ...interface{}) logrus.Fields {
	length := len(ctx)
	if length%2 != 0 {
		logrus.Debugf("log fields number %v is not even", length)
	}
	fields := make(logrus.Fields)
	for k := 0; k+2 <= length; k += 2 {
		key, ok := ctx[k].(string)
		if ok {
			fields[key] = ctx[k+1]
		} else {
			logrus.Debugf("log field key '%v' is not string", ctx[k])
		}
	}
	return fields
}

// Discard returns an entry that writes nothing, for tests and quiet tools.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
