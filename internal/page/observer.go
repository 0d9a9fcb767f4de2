package page

import "sync"

// observer feeds batches to one callback from its own goroutine. The queue is
// unbounded so that Update never blocks on a slow or re-entrant callback.
type observer struct {
	fn     func([]MutationRecord)
	mu     sync.Mutex
	queue  [][]MutationRecord
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newObserver(fn func([]MutationRecord)) *observer {
	o := &observer{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *observer) push(batch []MutationRecord) {
	o.mu.Lock()
	o.queue = append(o.queue, batch)
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *observer) stop() {
	o.once.Do(func() { close(o.done) })
}

func (o *observer) run() {
	for {
		select {
		case <-o.done:
			return
		case <-o.signal:
		}

		for {
			o.mu.Lock()
			if len(o.queue) == 0 {
				o.mu.Unlock()
				break
			}
			batch := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()

			select {
			case <-o.done:
				return
			default:
			}
			o.fn(batch)
		}
	}
}
