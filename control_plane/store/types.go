package store

import "time"

// Document is a generic JSON-serializable record stored in a named
// collection. The Vanguard engine and pulse producer persist incidents,
// analysis snapshots, live game/leader boards, per-player history and
// season baselines this way rather than through typed tables,
// so one interface serves every collection.
type Document struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Data       []byte    `json:"data"`
	UpdatedAt  time.Time `json:"updated_at"`
}
