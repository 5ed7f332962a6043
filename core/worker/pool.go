package worker

import (
	"reflect"
	"sort"
)

// Priority identifies one of the four scheduling classes named in the
// pipeline design: send-terminal stages run Top, encrypt/decrypt stages
// run High, compress/decompress stages run Normal, and file I/O runs Low.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Top
)

// Task is one unit of pipeline work: the bytes a stage produced and the
// function that turns them into the next stage's output (or a terminal
// side effect, for send/notify stages).
type Task struct {
	Priority Priority
	Input    []byte
	Fn       func([]byte)
}

// Pool is the priority-scheduled worker pool described in spec.md §4.2/§5:
// {top, high, normal, low} queues, workers whose primary priority is
// fixed but who steal from lower-priority queues when their own is empty.
// Handoff between pipeline stages is always Push (re-enqueue), never a
// direct call, so that a burst of CPU-heavy stage work can never starve
// the reactor goroutine that owns socket I/O.
type Pool struct {
	Worker

	queues map[Priority]chan Task
}

// Counts configures how many workers run at each priority, matching the
// start(...) parameters named in spec.md §6 (high_priority, normal_priority,
// low_priority); Top always gets exactly one worker.
type Counts struct {
	High   int
	Normal int
	Low    int
}

// NewPool constructs and starts a Pool. Each worker's steal order is its
// own priority first, then every priority below it, highest to lowest, so
// that a Top worker may run High/Normal/Low work when idle but a Low
// worker never reaches above its own station.
func NewPool(counts Counts) *Pool {
	p := &Pool{
		queues: map[Priority]chan Task{
			Top:    make(chan Task, 256),
			High:   make(chan Task, 1024),
			Normal: make(chan Task, 1024),
			Low:    make(chan Task, 1024),
		},
	}

	p.spawn(Top, 1)
	p.spawn(High, counts.High)
	p.spawn(Normal, counts.Normal)
	p.spawn(Low, counts.Low)
	return p
}

func (p *Pool) spawn(primary Priority, n int) {
	order := p.stealOrder(primary)
	for i := 0; i < n; i++ {
		p.Go(func() { p.runWorker(order) })
	}
}

// stealOrder returns primary followed by every priority strictly below it,
// from highest to lowest.
func (p *Pool) stealOrder(primary Priority) []Priority {
	all := []Priority{Top, High, Normal, Low}
	sort.Slice(all, func(i, j int) bool { return all[i] > all[j] })

	order := make([]Priority, 0, len(all))
	order = append(order, primary)
	for _, pr := range all {
		if pr < primary {
			order = append(order, pr)
		}
	}
	return order
}

func (p *Pool) runWorker(order []Priority) {
	for {
		select {
		case <-p.HaltCh():
			return
		default:
		}

		task, ok := p.dequeue(order)
		if !ok {
			task, ok = p.blockingDequeue(order)
			if !ok {
				return
			}
		}
		if task.Fn != nil {
			task.Fn(task.Input)
		}
	}
}

// blockingDequeue waits for a task on any queue this worker steals from,
// not just its primary priority: a worker whose own level never gets a
// task (e.g. a pool configured with zero Normal workers, where the Top
// worker is the only one that can ever drain the Normal queue) must still
// wake the moment any of its stealable levels receives work, not only its
// primary one. reflect.Select is used because the channel set is a
// runtime-determined subset (stealOrder) rather than a fixed arity.
func (p *Pool) blockingDequeue(order []Priority) (Task, bool) {
	cases := make([]reflect.SelectCase, 0, len(order)+1)
	for _, pr := range order {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(p.queues[pr])})
	}
	haltCase := len(cases)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(p.HaltCh())})

	chosen, recv, ok := reflect.Select(cases)
	if chosen == haltCase || !ok {
		return Task{}, false
	}
	return recv.Interface().(Task), true
}

func (p *Pool) dequeue(order []Priority) (Task, bool) {
	for _, pr := range order {
		select {
		case t := <-p.queues[pr]:
			return t, true
		default:
		}
	}
	return Task{}, false
}

// Push enqueues a task at the given priority. Push never blocks forever on
// a shutting-down pool: if Halt has already been called, Push drops the
// task and returns immediately, matching spec.md §5's "blocking enqueues
// into the worker pool when it is shutting down (cancellation returns
// immediately)".
func (p *Pool) Push(priority Priority, input []byte, fn func([]byte)) {
	select {
	case <-p.HaltCh():
		return
	default:
	}
	select {
	case p.queues[priority] <- Task{Priority: priority, Input: input, Fn: fn}:
	case <-p.HaltCh():
	}
}

// Stop halts every worker and drains outstanding tasks without running
// them, per spec.md §5: "stops the reactor, and drains the worker pool".
func (p *Pool) Stop() {
	p.Halt()
	for _, q := range p.queues {
		drained := false
		for !drained {
			select {
			case <-q:
			default:
				drained = true
			}
		}
	}
}
