package keygen

import "context"

// Pool runs key generation on a bounded set of worker goroutines so that
// RSA-4096 generation (the only call CPU-bound enough to matter) never
// blocks the goroutines serving network I/O, per §9's async-blocking design
// note and §5's "key-generation when it offloads to a worker thread"
// suspension point.
type Pool struct {
	jobs chan job
}

type job struct {
	kt     KeyType
	result chan<- result
}

type result struct {
	pair Pair
	err  error
}

// NewPool starts workers goroutines, each pulling from a shared job queue.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{jobs: make(chan job)}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for j := range p.jobs {
		pair, err := Generate(j.kt)
		j.result <- result{pair: pair, err: err}
	}
}

// Generate submits a generation request to the pool and waits for the
// result or for ctx to be cancelled.
func (p *Pool) Generate(ctx context.Context, kt KeyType) (Pair, error) {
	resCh := make(chan result, 1)
	select {
	case p.jobs <- job{kt: kt, result: resCh}:
	case <-ctx.Done():
		return Pair{}, ctx.Err()
	}
	select {
	case r := <-resCh:
		return r.pair, r.err
	case <-ctx.Done():
		return Pair{}, ctx.Err()
	}
}
