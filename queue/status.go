package queue

import "github.com/coldb/coldb/logentry"

// Status is a point-in-time snapshot of the queue for the HTTP status
// endpoint and periodic metrics scrape (spec §8 external interfaces).
type Status struct {
	QueueSize                int      `json:"queue_size"`
	InsertsInQueue           int      `json:"inserts_in_queue"`
	MergesInQueue            int      `json:"merges_in_queue"`
	PartMutationsInQueue     int      `json:"part_mutations_in_queue"`
	QueueOldestTime          int64    `json:"queue_oldest_time"`
	MinUnprocessedInsertTime int64    `json:"min_unprocessed_insert_time"`
	MaxProcessedInsertTime   int64    `json:"max_processed_insert_time"`
	FutureParts              []string `json:"future_parts"`
}

// GetStatus assembles a Status snapshot under a single lock acquisition,
// the way the original's getStatus walks the queue once rather than
// recomputing each field independently.
func (q *ReplicatedQueue) GetStatus() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{
		QueueSize:                q.queueList.Len(),
		MinUnprocessedInsertTime: q.minUnprocessedInsertTime,
		MaxProcessedInsertTime:   q.maxProcessedInsertTime,
		FutureParts:              make([]string, 0, len(q.futureParts)),
	}
	for p := range q.futureParts {
		st.FutureParts = append(st.FutureParts, p)
	}

	for e := q.queueList.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.LogEntry)
		if entry.CreateTime != 0 && (st.QueueOldestTime == 0 || entry.CreateTime < st.QueueOldestTime) {
			st.QueueOldestTime = entry.CreateTime
		}
		switch entry.Type {
		case logentry.GetPart:
			st.InsertsInQueue++
		case logentry.MergeParts:
			st.MergesInQueue++
		case logentry.AttachPart, logentry.DropRange, logentry.ClearColumn:
			st.PartMutationsInQueue++
		}
	}
	return st
}
