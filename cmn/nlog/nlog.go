// Package nlog is the node-wide logger, called the same package-level
// way as the teacher's cmn/nlog (nlog.Infof, nlog.Warningln, ...), backed
// by go.uber.org/zap's sugared logger.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package nlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	sugar  *zap.SugaredLogger
	fields []any
)

func logger() *zap.SugaredLogger {
	once.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		sugar = l.Sugar()
	})
	return sugar
}

// SetGlobalFields attaches key-value pairs (e.g. "replica", replicaID) to
// every subsequent log line, mirroring how the teacher's nlog binds the
// target/proxy daemon id once at startup.
func SetGlobalFields(kv ...any) {
	fields = append(fields, kv...)
}

func with() *zap.SugaredLogger {
	if len(fields) == 0 {
		return logger()
	}
	return logger().With(fields...)
}

func Infof(format string, args ...any)    { with().Infof(format, args...) }
func Infoln(args ...any)                  { with().Infoln(args...) }
func Warningf(format string, args ...any) { with().Warnf(format, args...) }
func Warningln(args ...any)               { with().Warnln(args...) }
func Errorf(format string, args ...any)   { with().Errorf(format, args...) }
func Errorln(args ...any)                 { with().Errorln(args...) }

// Fatalln logs at fatal level and exits the process: the disposition the
// spec requires for in-RAM invariant violations and coordinator
// divergence (§7, §9).
func Fatalln(args ...any) { with().Fatalln(args...) }
