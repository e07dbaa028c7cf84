package ingest

// Signal reports that Completed of Total paths in a batch have been handled.
type Signal struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Channel is a single-slot hand-off for progress signals. Neither end ever
// blocks: TrySend fails when the slot is occupied and TryReceive reports an
// empty slot immediately. A Channel has no notion of closure; consumers learn
// that a batch is done from the signal contents alone.
type Channel struct {
	slot chan Signal
}

// NewChannel returns an empty Channel.
func NewChannel() *Channel {
	return &Channel{slot: make(chan Signal, 1)}
}

// TrySend places s in the slot if it is free and reports whether it did.
func (c *Channel) TrySend(s Signal) bool {
	select {
	case c.slot <- s:
		return true
	default:
		return false
	}
}

// TryReceive takes the pending signal, if any.
func (c *Channel) TryReceive() (Signal, bool) {
	select {
	case s := <-c.slot:
		return s, true
	default:
		return Signal{}, false
	}
}

// Replace discards a stale pending signal and places s instead. With a single
// producer it always succeeds, since the consumer only ever empties the slot.
// Used for the terminal signal of a batch so pollers can always observe it.
func (c *Channel) Replace(s Signal) bool {
	for i := 0; i < 2; i++ {
		if c.TrySend(s) {
			return true
		}
		select {
		case <-c.slot:
		default:
		}
	}
	return false
}
