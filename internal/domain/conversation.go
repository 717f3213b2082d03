package domain

// Turn is a single persisted conversation turn: one inbound message and the
// reply sent back for it. Turns are append-only and ordered by SK.
type Turn struct {
	PK       string
	SK       string
	Sender   string
	Inbound  string
	Outbound string
	TTL      int64
}
