package versioned

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// Record is the envelope the consistency layer moves between the durable
// store and the cache. The durable copy is the source of truth; a cache copy
// with a lower version is stale and must never drive a decision.
type Record struct {
	Key        string    `json:"key"`
	Data       []byte    `json:"data"`
	Version    int64     `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	Checksum   uint64    `json:"checksum"`
	ModifiedBy string    `json:"modified_by"`
	Source     string    `json:"source"`
}

func Checksum(data []byte) uint64 { return xxhash.Sum64(data) }

// Intact reports whether Data still matches the stored checksum.
func (r Record) Intact() bool { return r.Checksum == xxhash.Sum64(r.Data) }
