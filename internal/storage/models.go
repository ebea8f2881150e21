package storage

import "time"

// Blob is one stored collection together with its write version.
type Blob struct {
	Key     string
	Value   []byte
	Version int64
}

type AuditEntry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	MetaJSON  string    `json:"meta"`
	CreatedAt time.Time `json:"createdAt"`
}
