// ABOUTME: Generic recyclable object pool
// ABOUTME: Hands out idle items or builds new ones, and takes items back exactly once
package pool

import (
	"log"
	"sync"
)

// Pool recycles items of type T. The idle set has no capacity bound.
type Pool[T any] struct {
	name    string
	factory func() *T
	reset   func(*T)

	mu   sync.Mutex
	free []*T
	idle map[*T]struct{}

	created int
}

// New creates a pool. reset may be nil.
func New[T any](name string, factory func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		name:    name,
		factory: factory,
		reset:   reset,
		idle:    make(map[*T]struct{}),
	}
}

// Acquire returns an idle item, or a freshly built one when none are idle
func (p *Pool[T]) Acquire() *T {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		item := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		delete(p.idle, item)
		p.mu.Unlock()
		return item
	}
	p.created++
	created := p.created
	p.mu.Unlock()

	if created%100 == 1 {
		log.Printf("[pool %s] allocating item #%d", p.name, created)
	}
	return p.factory()
}

// Release resets item and makes it available again.
// Releasing an item that is already idle is a no-op.
func (p *Pool[T]) Release(item *T) {
	if item == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.idle[item]; ok {
		return
	}
	if p.reset != nil {
		p.reset(item)
	}
	p.idle[item] = struct{}{}
	p.free = append(p.free, item)
}

// Len returns the number of idle items
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Created returns how many items the factory has built
func (p *Pool[T]) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Clear drops every idle item
func (p *Pool[T]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = nil
	p.idle = make(map[*T]struct{})
}
