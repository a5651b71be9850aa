package mqtt

// message is a serialized publish held for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds publishes made while the broker is unreachable. A retained
// message replaces any earlier retained message on the same topic, since the
// broker would only keep the last one. When full the oldest entry is dropped.
// Callers serialize access.
type outbox struct {
	msgs    []message
	limit   int
	dropped int
}

func newOutbox(limit int) *outbox {
	return &outbox{msgs: make([]message, 0, limit), limit: limit}
}

// add queues m. It returns true the first time an entry is dropped since the
// last flush.
func (o *outbox) add(m message) bool {
	if m.retained {
		for i := range o.msgs {
			if o.msgs[i].retained && o.msgs[i].topic == m.topic {
				o.msgs = append(o.msgs[:i], o.msgs[i+1:]...)
				break
			}
		}
	}
	first := false
	if len(o.msgs) == o.limit {
		o.msgs = o.msgs[1:]
		o.dropped++
		first = o.dropped == 1
	}
	o.msgs = append(o.msgs, m)
	return first
}

// flush returns the queued messages oldest first, with the number dropped,
// and empties the outbox.
func (o *outbox) flush() ([]message, int) {
	if len(o.msgs) == 0 {
		o.dropped = 0
		return nil, 0
	}
	out := o.msgs
	dropped := o.dropped
	o.msgs = make([]message, 0, o.limit)
	o.dropped = 0
	return out, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
