// Package cos holds small constants and string/time helpers shared across
// the node process, the way aistore's cmn/cos does for its cluster.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package cos

import (
	"strconv"
	"time"
)

// Log sub-modules, gating verbose logging the way cmn.Rom.FastV does in
// the teacher; kept here rather than in nlog so callers don't need to
// import the logging package just to name a module.
const (
	SmoduleQueue = "queue"
	SmoduleCoord = "coord"
	SmodulePull  = "puller"
)

// FormatUnixSeconds renders a create_time watermark the way the log and
// status payloads expect it: ASCII decimal seconds, "0" for unset.
func FormatUnixSeconds(t int64) string {
	return strconv.FormatInt(t, 10)
}

// ParseUnixSeconds is the inverse of FormatUnixSeconds.
func ParseUnixSeconds(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// NowUnix is the single place that reads the wall clock for create_time /
// last_attempt_time / last_postpone_time stamps, so tests can see where
// time enters the system.
func NowUnix() int64 { return time.Now().Unix() }
