// Package parts implements the canonical part name codec and the
// ActivePartSet ordered containment index (spec §3, §4.1), grounded on
// the original ClickHouse ActiveDataPartSet referenced throughout
// ReplicatedMergeTreeQueue.cpp.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package parts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Name is the parsed form of a part's canonical string encoding:
// "<partition>_<min_block>_<max_block>_<level>".
type Name struct {
	Partition string
	Min       int64
	Max       int64
	Level     int64
}

// ErrMalformedPartName is returned by Parse for a string that does not
// carry the trailing "_min_max_level" numeric triple.
var ErrMalformedPartName = errors.New("malformed part name")

// Parse decodes a canonical part name. The partition id may itself
// contain underscores, so parsing anchors on the three trailing
// numeric fields rather than splitting on a fixed field count.
func Parse(name string) (Name, error) {
	fields := strings.Split(name, "_")
	if len(fields) < 4 {
		return Name{}, errors.Wrapf(ErrMalformedPartName, "%q", name)
	}
	n := len(fields)
	level, err := strconv.ParseInt(fields[n-1], 10, 64)
	if err != nil {
		return Name{}, errors.Wrapf(ErrMalformedPartName, "%q: bad level", name)
	}
	max, err := strconv.ParseInt(fields[n-2], 10, 64)
	if err != nil {
		return Name{}, errors.Wrapf(ErrMalformedPartName, "%q: bad max_block", name)
	}
	min, err := strconv.ParseInt(fields[n-3], 10, 64)
	if err != nil {
		return Name{}, errors.Wrapf(ErrMalformedPartName, "%q: bad min_block", name)
	}
	partition := strings.Join(fields[:n-3], "_")
	if partition == "" {
		return Name{}, errors.Wrapf(ErrMalformedPartName, "%q: empty partition", name)
	}
	return Name{Partition: partition, Min: min, Max: max, Level: level}, nil
}

// String re-serializes a Name into its canonical form.
func (n Name) String() string {
	return fmt.Sprintf("%s_%d_%d_%d", n.Partition, n.Min, n.Max, n.Level)
}

// Contains reports whether outer covers inner: same partition, and
// outer's block range encloses inner's (levels allow ties; a part never
// contains a different-partition part).
func (outer Name) Contains(inner Name) bool {
	return outer.Partition == inner.Partition && outer.Min <= inner.Min && inner.Max <= outer.Max
}

// Contains is the static predicate form spec §4.1 calls out explicitly,
// operating on raw canonical strings; malformed input never contains or
// is contained (mirrors the original's refusal to start on bad payloads
// rather than silently matching).
func Contains(outerName, innerName string) bool {
	outer, err := Parse(outerName)
	if err != nil {
		return false
	}
	inner, err := Parse(innerName)
	if err != nil {
		return false
	}
	return outer.Contains(inner)
}
