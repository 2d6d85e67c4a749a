package pipeline

const (
	// partitionShift is the bit offset of the partition index in a monotonic key.
	partitionShift = 33

	// hashKeyMask keeps hash keys non-negative.
	hashKeyMask = 1<<63 - 1
)

// sourceExtensions are the object suffixes picked up when the source is a prefix.
var sourceExtensions = []string{".json", ".jsonl", ".ndjson"}
