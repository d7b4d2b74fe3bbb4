package badger

import (
	"encoding/binary"

	"github.com/poiesic/docingest/core"
)

// Key prefixes for different data types
const (
	jobPrefix       = "job:"
	jobStatusPrefix = "jobst:"
	hydratedKey     = "meta:hydrated"
)

// makeJobKey generates the primary key for a job.
// Format: prefix:id (BigEndian so keys sort by ID)
func makeJobKey(id core.ID) []byte {
	buf := make([]byte, len(jobPrefix)+8)
	offset := copy(buf, jobPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeStatusPrefix generates the prefix shared by all index keys of one status.
// Format: prefix:status:
func makeStatusPrefix(status core.JobStatus) []byte {
	return []byte(jobStatusPrefix + string(status) + ":")
}

// makeStatusKey generates a composite key for the status index.
// Format: prefix:status:id
func makeStatusKey(status core.JobStatus, id core.ID) []byte {
	prefix := makeStatusPrefix(status)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// idFromStatusKey extracts the job ID from a status index key.
func idFromStatusKey(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
