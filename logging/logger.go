package logging

import (
	"github.com/sirupsen/logrus"
)

// Logger is accepted by every component. Both the root logger and entries
// derived from it via WithField/WithError satisfy it.
type Logger interface {
	logrus.FieldLogger
}

type RootLogger struct {
	*logrus.Logger
}

func New() *RootLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &RootLogger{logger}
}
