// Package klog is the kernel's post-boot diagnostic logger. Unlike
// kernel/kfmt/early (which must run before the heap exists), every
// subsystem reachable after pmm/vmm init runs with a working allocator, so
// it logs through a structured logger the way rclone's fs/log and moby's
// daemon/logger do.
package klog

import (
	"io"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}

// SetOutput redirects diagnostic log output; tests use this to silence or
// capture log lines.
func SetOutput(w io.Writer) { log.SetOutput(w) }

// SetLevel controls the minimum logged severity.
func SetLevel(level logrus.Level) { log.SetLevel(level) }

// Fields is a structured set of key/value pairs attached to a log line.
type Fields = logrus.Fields

// WithFields returns an entry pre-populated with the given fields, e.g.
//
//	klog.WithFields(klog.Fields{"pid": pid, "cid": cid}).Info("thread exit")
func WithFields(fields Fields) *logrus.Entry { return log.WithFields(fields) }

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
