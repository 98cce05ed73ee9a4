package models

// Measurement is the raw consumption a processor reports for one invocation.
// The resource calculator normalizes these into compute/storage/total units.
type Measurement struct {
	Bytes           int64   `json:"bytes"`
	Pages           int     `json:"pages"`
	DurationSeconds float64 `json:"duration_seconds"`
	Tokens          int     `json:"tokens"`
}
