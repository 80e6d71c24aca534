// Package reconcile defines the message exchanged between the API and the
// counter-reconciliation worker. Counters are derived from the visit and
// treat ledgers; when a post-create counter update fails, the API enqueues
// one of these instead of retrying inline.
package reconcile

// Message kinds.
const (
	KindCatCounters = "cat_counters"
	KindUserStat    = "user_stat"
)

// Message is the payload sent API -> SQS -> reconciler.
type Message struct {
	Kind   string `json:"kind"`
	CatID  string `json:"cat_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Scope  string `json:"scope,omitempty"`
}
