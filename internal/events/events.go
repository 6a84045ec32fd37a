// Package events defines the timestamped outcome records produced by executed
// transitions and the concurrent sink that carries them to an aggregator.
package events

import "time"

// Detail classifies what an executed transition did.
type Detail string

const (
	DetailAuthentication Detail = "authentication"
	DetailPersonGet      Detail = "person_get"
	DetailPersonSet      Detail = "person_set"
	DetailLogout         Detail = "logout"
	DetailError          Detail = "error"
)

// IsError reports whether the record describes a failed directory call.
func (d Detail) IsError() bool {
	return d == DetailError
}

// Record is the outcome of one executed transition. Records are values and are
// never mutated after the executor returns them.
type Record struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Details  Detail        `json:"details"`
}

// Entry is a record tagged with the actor that produced it. Seq increases by
// one for every record an actor publishes.
type Entry struct {
	Actor  string `json:"actor"`
	Seq    uint64 `json:"seq"`
	Action string `json:"action"`
	Record
}
