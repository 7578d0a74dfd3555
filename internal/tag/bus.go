package tag

// Bus is a bounded, single-producer single-consumer, latest-value-wins
// channel used for the FS -> CFR start_index feedback message. It never
// blocks the producer: a pending value that hasn't been read yet is
// overwritten rather than queued, since only the most recent frame-start
// estimate is ever meaningful to the consumer.
type Bus struct {
	ch chan int64
}

// NewBus creates an empty message bus.
func NewBus() *Bus {
	return &Bus{ch: make(chan int64, 1)}
}

// Publish sends v, discarding any unread previous value.
func (b *Bus) Publish(v int64) {
	select {
	case <-b.ch:
	default:
	}
	b.ch <- v
}

// TryReceive returns the most recently published value and true, or
// (0, false) if nothing is pending.
func (b *Bus) TryReceive() (int64, bool) {
	select {
	case v := <-b.ch:
		return v, true
	default:
		return 0, false
	}
}
