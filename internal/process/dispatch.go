package process

// maxEvents is the most events a single instance can emit.
const maxEvents = 3

// dispatcher delivers events to a sink on its own goroutine, preserving order.
type dispatcher struct {
	sink   EventSink
	logger Logger
	events chan Event
	done   chan struct{}
}

func newDispatcher(sink EventSink, logger Logger) *dispatcher {
	d := &dispatcher{
		sink:   sink,
		logger: logger,
		events: make(chan Event, maxEvents),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		d.deliver(ev)
	}
}

func (d *dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event sink panicked",
				"event", string(ev.Type),
				"instance", ev.Instance,
				"panic", r,
			)
		}
	}()
	d.sink.HandleEvent(ev)
}

// emit queues ev. It never blocks as long as at most maxEvents are emitted.
func (d *dispatcher) emit(ev Event) {
	d.events <- ev
}

// close stops accepting events and waits for queued ones to be delivered.
func (d *dispatcher) close() {
	close(d.events)
	<-d.done
}
