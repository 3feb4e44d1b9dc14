package versioned

import "encoding/json"

type Policy string

const (
	PolicyLastWriteWins Policy = "last_write_wins"
	PolicyMerge         Policy = "merge"
	PolicyManual        Policy = "manual"
)

// Conflict is a pair of disagreeing versions parked for operator review.
type Conflict struct {
	Key    string
	Local  Record
	Remote Record
}

func lastWriteWins(local, remote Record) Record {
	if remote.Timestamp.After(local.Timestamp) {
		return remote
	}
	return local
}

// merge does a shallow object merge with remote fields winning; anything
// that is not a JSON object falls back to last-write-wins.
func merge(local, remote Record) Record {
	var l, r map[string]json.RawMessage
	if err := json.Unmarshal(local.Data, &l); err != nil {
		return lastWriteWins(local, remote)
	}
	if err := json.Unmarshal(remote.Data, &r); err != nil {
		return lastWriteWins(local, remote)
	}
	for k, v := range r {
		l[k] = v
	}
	merged, err := json.Marshal(l)
	if err != nil {
		return lastWriteWins(local, remote)
	}
	out := lastWriteWins(local, remote)
	out.Data = merged
	out.Checksum = Checksum(merged)
	return out
}
