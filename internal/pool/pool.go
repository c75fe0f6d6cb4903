// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool provides generic typed pooling plus shared [*bytes.Buffer]
// and [*strings.Builder] pools.
package pool

import (
	"bytes"
	"strings"
	"sync"
)

// Pool is a generics wrapper around [sync.Pool] to provide strongly-typed
// object pooling.
type Pool[T any] struct {
	p sync.Pool
}

type Reseter interface {
	Reset()
}

// New returns a new [Pool] for T, and will use fn to construct new T's when
// the pool is empty.
func New[T any](fn func() T) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() any {
				return fn()
			},
		},
	}
}

// Get gets a T from the pool, or creates a new one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

// Put returns x into the pool, resetting it first when it is a Reseter.
func (p *Pool[T]) Put(x T) {
	if xx, ok := any(x).(Reseter); ok {
		xx.Reset()
	}
	p.p.Put(x)
}

// Bytes provides the [*bytes.Buffer] pooling objects.
var Bytes = New(func() *bytes.Buffer {
	return &bytes.Buffer{}
})

// String provides the [*strings.Builder] pooling objects.
var String = New(func() *strings.Builder {
	return &strings.Builder{}
})
