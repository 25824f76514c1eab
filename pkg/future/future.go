/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package future provides single assignment values with continuation
// callbacks.  Futures are not synchronized, they must only be used from the
// single logical thread of the simulation.
package future

import (
	"github.com/pkg/errors"
)

type Callback[T any] func(value T, err error)

type state[T any] struct {
	done      bool
	value     T
	err       error
	callbacks []Callback[T]
}

// Future is the consumer side of a contract.
type Future[T any] struct {
	s *state[T]
}

// Promise is the producer side of a contract.
type Promise[T any] struct {
	s *state[T]
}

// NewContract returns a connected future and promise.
func NewContract[T any]() (Future[T], Promise[T]) {
	s := &state[T]{}
	return Future[T]{s: s}, Promise[T]{s: s}
}

// Ready returns an already completed future.
func Ready[T any](value T) Future[T] {
	f, p := NewContract[T]()
	p.Set(value)
	return f
}

// Failed returns an already failed future.
func Failed[T any](err error) Future[T] {
	f, p := NewContract[T]()
	p.Fail(err)
	return f
}

func (f Future[T]) IsValid() bool {
	return f.s != nil
}

func (f Future[T]) IsReady() bool {
	return f.s.done
}

// Result returns the value of a completed future and panics otherwise.
func (f Future[T]) Result() (T, error) {
	if !f.s.done {
		panic("result of a pending future")
	}
	return f.s.value, f.s.err
}

// Subscribe invokes cb once the future completes, immediately if it
// already has.
func (f Future[T]) Subscribe(cb Callback[T]) {
	if f.s.done {
		cb(f.s.value, f.s.err)
		return
	}
	f.s.callbacks = append(f.s.callbacks, cb)
}

func (p Promise[T]) IsDone() bool {
	return p.s.done
}

func (p Promise[T]) Set(value T) {
	p.Complete(value, nil)
}

func (p Promise[T]) Fail(err error) {
	if err == nil {
		panic("failing a promise with a nil error")
	}
	var zero T
	p.Complete(zero, err)
}

// Complete fulfills the promise and runs the subscribed callbacks in
// subscription order.  Completing a promise twice is a programming error.
func (p Promise[T]) Complete(value T, err error) {
	if p.s.done {
		panic("promise completed twice")
	}
	p.s.done = true
	p.s.value = value
	p.s.err = err

	callbacks := p.s.callbacks
	p.s.callbacks = nil
	for _, cb := range callbacks {
		cb(value, err)
	}
}

// Then maps the value of f once it completes.  Errors skip fn.
func Then[T, U any](f Future[T], fn func(T) (U, error)) Future[U] {
	next, p := NewContract[U]()
	f.Subscribe(func(value T, err error) {
		if err != nil {
			p.Fail(err)
			return
		}
		p.Complete(fn(value))
	})
	return next
}

// All completes with the values of all futures in order, or fails with the
// first error.
func All[T any](fs []Future[T]) Future[[]T] {
	if len(fs) == 0 {
		return Ready[[]T](nil)
	}

	result, p := NewContract[[]T]()
	values := make([]T, len(fs))
	pending := len(fs)
	for i, f := range fs {
		i := i
		f.Subscribe(func(value T, err error) {
			if p.IsDone() {
				return
			}
			if err != nil {
				p.Fail(err)
				return
			}
			values[i] = value
			pending--
			if pending == 0 {
				p.Set(values)
			}
		})
	}
	return result
}

// Quorum completes with the first threshold values, in completion order, or
// fails as soon as the threshold can no longer be reached.
func Quorum[T any](fs []Future[T], threshold int) Future[[]T] {
	if threshold > len(fs) {
		return Failed[[]T](errors.Errorf("quorum of %d requested from %d futures", threshold, len(fs)))
	}
	if threshold <= 0 {
		return Ready[[]T](nil)
	}

	result, p := NewContract[[]T]()
	values := make([]T, 0, threshold)
	failures := 0
	for _, f := range fs {
		f.Subscribe(func(value T, err error) {
			if p.IsDone() {
				return
			}
			if err != nil {
				failures++
				if len(fs)-failures < threshold {
					p.Fail(errors.WithMessagef(err, "quorum of %d unreachable, %d of %d failed", threshold, failures, len(fs)))
				}
				return
			}
			values = append(values, value)
			if len(values) == threshold {
				p.Set(values)
			}
		})
	}
	return result
}
