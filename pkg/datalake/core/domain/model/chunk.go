package model

import (
	"fmt"
	"time"
)

// Chunk is a contiguous slice of the record sequence delivered as one upload.
type Chunk struct {
	Index      int
	Records    []Record
	RequestID  string
	BatchRunID string
}

// NewRequestID derives a chunk request id from the submission time and the chunk index.
func NewRequestID(submitted time.Time, index int) string {
	return fmt.Sprintf("%d-%d", submitted.UnixNano(), index)
}

// SplitIntoChunks partitions records into ceil(len/size) chunks of at most size records,
// preserving order. Chunks share the backing array of records.
func SplitIntoChunks(records []Record, size int, batchRunID string, submitted time.Time) []Chunk {
	if size < 1 {
		size = 1
	}
	chunks := make([]Chunk, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		index := len(chunks)
		chunks = append(chunks, Chunk{
			Index:      index,
			Records:    records[start:end:end],
			RequestID:  NewRequestID(submitted, index),
			BatchRunID: batchRunID,
		})
	}
	return chunks
}
