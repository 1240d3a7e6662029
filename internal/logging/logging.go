// Package logging builds the application logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New returns a logger at level writing to stderr and, when file is set, also
// appending to file. Unknown levels fall back to info.
func New(level, file string) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	writers := []io.Writer{os.Stderr}
	var closer io.Closer = nopCloser{}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, nil, errors.Wrap(err, "log directory")
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open log file")
		}
		writers = append(writers, f)
		closer = f
	}
	log.SetOutput(io.MultiWriter(writers...))
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
