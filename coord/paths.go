package coord

import "fmt"

// Node layout constants, spec §6. zookeeper_path is the shard-wide root
// ("/log" lives directly under it); replica_path is this replica's own
// subtree ("/replica/queue", "/replica/log_pointer", ...).
const (
	logChild            = "log"
	logEntryPrefix      = "log-"
	queueChild          = "queue"
	queueEntryPrefix    = "queue-"
	logPointerChild     = "log_pointer"
	minUnprocessedChild = "min_unprocessed_insert_time"
	maxProcessedChild   = "max_processed_insert_time"
	indexWidth          = 10
)

// PadIndex zero-pads index to the fixed 10-character width the spec
// mandates, so lexicographic and numeric ordering of node names agree.
func PadIndex(index uint64) string {
	return fmt.Sprintf("%0*d", indexWidth, index)
}

func LogPath(zookeeperPath string) string {
	return zookeeperPath + "/" + logChild
}

func LogEntryPath(zookeeperPath string, index uint64) string {
	return LogPath(zookeeperPath) + "/" + logEntryPrefix + PadIndex(index)
}

// LogEntryPathPrefix is the Create path passed for a new sequential
// /log entry, e.g. by a replica appending a freshly-issued insert.
func LogEntryPathPrefix(zookeeperPath string) string {
	return LogPath(zookeeperPath) + "/" + logEntryPrefix
}

func QueuePath(replicaPath string) string {
	return replicaPath + "/" + queueChild
}

func QueueEntryPathPrefix(replicaPath string) string {
	return QueuePath(replicaPath) + "/" + queueEntryPrefix
}

func LogPointerPath(replicaPath string) string {
	return replicaPath + "/" + logPointerChild
}

func MinUnprocessedInsertTimePath(replicaPath string) string {
	return replicaPath + "/" + minUnprocessedChild
}

func MaxProcessedInsertTimePath(replicaPath string) string {
	return replicaPath + "/" + maxProcessedChild
}

// IsLogEntryName reports whether name looks like "log-<10 digits>".
func IsLogEntryName(name string) bool {
	if len(name) != len(logEntryPrefix)+indexWidth {
		return false
	}
	for _, c := range name[len(logEntryPrefix):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return name[:len(logEntryPrefix)] == logEntryPrefix
}

// ParseLogIndex extracts the numeric index from a "log-NNNNNNNNNN" name.
func ParseLogIndex(name string) (uint64, error) {
	if !IsLogEntryName(name) {
		return 0, fmt.Errorf("coord: not a log entry name: %q", name)
	}
	var idx uint64
	_, err := fmt.Sscanf(name[len(logEntryPrefix):], "%d", &idx)
	return idx, err
}
