package tasks

import "sync"

// pool runs work on at most size goroutines and keeps the first error.
//
// Callers reserve a slot with acquire before deciding whether to start more work,
// so a cancel check made after acquire sees the results of every finished unit
// when size is 1.
type pool struct {
	slots chan struct{}
	wg    sync.WaitGroup

	mu  sync.Mutex
	err error
}

func newPool(size int) *pool {
	if size < 1 {
		size = 1
	}
	return &pool{slots: make(chan struct{}, size)}
}

func (p *pool) acquire() { p.slots <- struct{}{} }

func (p *pool) release() { <-p.slots }

// goAcquired runs fn on the slot reserved by the last acquire.
func (p *pool) goAcquired(fn func() error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		if err := fn(); err != nil {
			p.setErr(err)
		}
	}()
}

func (p *pool) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// failed returns the first recorded error.
func (p *pool) failed() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// wait blocks until all started work is finished and returns the first error.
func (p *pool) wait() error {
	p.wg.Wait()
	return p.failed()
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock locks key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
