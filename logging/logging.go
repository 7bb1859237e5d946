// Package logging sets up the logrus logger shared by the commands.
package logging

import (
	"io"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
)

const TimestampFormat = "2006-01-02 15:04:05.000"

// New returns a logger writing to out at the given level.
func New(out io.Writer, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: TimestampFormat,
	})
	log.SetOutput(ansicolor.NewAnsiColorWriter(out))
	log.SetLevel(lvl)
	return log, nil
}

// WithRun tags every entry with a short id for the run.
func WithRun(log logrus.FieldLogger) logrus.FieldLogger {
	id, err := shortid.Generate()
	if err != nil {
		return log
	}
	return log.WithField("run", id)
}
