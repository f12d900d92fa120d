// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log adapts github.com/sirupsen/logrus to pluginvm.Logger, the
// minimal structured-logging capability the manager needs. The teacher's
// own log/logger.go is a bare io.Writer wrapper; SPEC_FULL.md's ambient
// stack upgrades that to leveled, field-based logging the way
// trywpm-cli configures its own logrus logger.
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/golang/pluginvm"
)

// Entry wraps a *logrus.Entry so WithField returns another
// pluginvm.Logger rather than logrus's own *Entry type.
type Entry struct {
	entry *logrus.Entry
}

var _ pluginvm.Logger = (*Entry)(nil)

// New builds an Entry around a fresh logrus.Logger with logrus's own
// defaults (text formatter, Info level, stderr output).
func New() *Entry {
	return &Entry{entry: logrus.NewEntry(logrus.New())}
}

// Wrap adapts an already-configured *logrus.Logger, for callers that
// manage their own formatter, level, and hooks.
func Wrap(l *logrus.Logger) *Entry {
	return &Entry{entry: logrus.NewEntry(l)}
}

func (e *Entry) WithField(key string, value interface{}) pluginvm.Logger {
	return &Entry{entry: e.entry.WithField(key, value)}
}

func (e *Entry) Debugf(format string, args ...interface{}) { e.entry.Debugf(format, args...) }
func (e *Entry) Infof(format string, args ...interface{})  { e.entry.Infof(format, args...) }
func (e *Entry) Warnf(format string, args ...interface{})  { e.entry.Warnf(format, args...) }
func (e *Entry) Errorf(format string, args ...interface{}) { e.entry.Errorf(format, args...) }
