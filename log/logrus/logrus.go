// Package logrus adapts github.com/sirupsen/logrus to the logx.Logger
// capability.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/ngdp-go/cascstore/logx"
)

type Logger struct{ E *logrus.Entry }

var _ logx.Logger = Logger{}

func (l Logger) Debug(msg string, f logx.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f logx.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f logx.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f logx.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }
