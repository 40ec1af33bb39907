package logentry

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrParse and ErrUnknownType are the two fatal-to-the-replica failure
// modes spec §4.2/§7 call out: a malformed payload, or a type tag this
// binary doesn't know. Neither is recoverable — callers must refuse to
// start the replica, not skip the entry.
var (
	ErrParse       = errors.New("malformed log entry payload")
	ErrUnknownType = errors.New("unknown log entry type")
)

const formatVersion = "version: 1"

// Serialize renders l deterministically: the same LogEntry always
// produces byte-identical output, because coordinator nodes holding the
// same entry are compared across replicas (spec §4.2).
func Serialize(l *LogEntry) []byte {
	var b bytes.Buffer
	fmt.Fprintln(&b, formatVersion)
	fmt.Fprintf(&b, "type: %s\n", l.Type.String())
	fmt.Fprintf(&b, "new_part_name: %s\n", l.NewPartName)
	fmt.Fprintf(&b, "create_time: %d\n", l.CreateTime)
	fmt.Fprintf(&b, "source_replica: %s\n", l.SourceReplica)
	if l.Type == MergeParts {
		fmt.Fprintf(&b, "parts_to_merge: %d\n", len(l.PartsToMerge))
		for _, p := range l.PartsToMerge {
			fmt.Fprintf(&b, "%s\n", p)
		}
	}
	return b.Bytes()
}

// Parse decodes a payload produced by Serialize. Unknown trailing lines
// (fields added by a newer version) are tolerated and ignored, per
// spec §4.2's forward-compatibility requirement.
func Parse(payload []byte) (*LogEntry, error) {
	sc := bufio.NewScanner(bytes.NewReader(payload))
	l := &LogEntry{}

	if !sc.Scan() {
		return nil, errors.Wrap(ErrParse, "empty payload")
	}
	if strings.TrimSpace(sc.Text()) != formatVersion {
		return nil, errors.Wrapf(ErrParse, "unexpected header %q", sc.Text())
	}

	fields := map[string]string{}
	var partsToMergeCount int
	var haveMergeCount bool

	for sc.Scan() {
		line := sc.Text()
		key, val, ok := splitField(line)
		if !ok {
			break // first non "key: value" line starts the parts_to_merge body, or trailing unknowns
		}
		switch key {
		case "parts_to_merge":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, errors.Wrapf(ErrParse, "bad parts_to_merge count %q", val)
			}
			partsToMergeCount = n
			haveMergeCount = true
			goto readParts
		default:
			fields[key] = val
		}
	}

readParts:
	if haveMergeCount {
		for i := 0; i < partsToMergeCount; i++ {
			if !sc.Scan() {
				return nil, errors.Wrapf(ErrParse, "expected %d parts_to_merge entries, got %d", partsToMergeCount, i)
			}
			l.PartsToMerge = append(l.PartsToMerge, sc.Text())
		}
	}
	// Remaining lines, if any, are forward-compatible unknown fields:
	// ignored per spec.

	typeStr, ok := fields["type"]
	if !ok {
		return nil, errors.Wrap(ErrParse, "missing type")
	}
	typ, ok := typeFromString(typeStr)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "%q", typeStr)
	}
	l.Type = typ

	l.NewPartName, ok = fields["new_part_name"]
	if !ok {
		return nil, errors.Wrap(ErrParse, "missing new_part_name")
	}
	l.SourceReplica = fields["source_replica"]

	if ct, ok := fields["create_time"]; ok {
		v, err := strconv.ParseInt(ct, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrParse, "bad create_time %q", ct)
		}
		l.CreateTime = v
	}

	return l, nil
}

func splitField(line string) (key, val string, ok bool) {
	i := strings.Index(line, ": ")
	if i < 0 {
		return "", "", false
	}
	return line[:i], line[i+2:], true
}
