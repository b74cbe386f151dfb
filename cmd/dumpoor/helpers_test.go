package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

type countingHook struct {
	count *int
}

func (h *countingHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *countingHook) Fire(*logrus.Entry) error {
	*h.count++

	return nil
}

func newTestLogger(hooks ...logrus.Hook) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	for _, h := range hooks {
		l.AddHook(h)
	}

	return l
}
