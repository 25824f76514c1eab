/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memory

import (
	"fmt"
)

// Scope tracks the arena of the actor currently executing.  Entering a scope
// pushes an arena, the returned release function pops it again.  Scopes nest,
// for instance when the world logs on behalf of an actor while one of its
// steps is executing.
type Scope struct {
	stack []*Arena
}

// Enter makes arena the active arena until release is invoked.  Releases
// must happen in reverse order of entering, which a deferred release
// guarantees on every exit path.
func (s *Scope) Enter(arena *Arena) (release func()) {
	s.stack = append(s.stack, arena)
	depth := len(s.stack)
	released := false
	return func() {
		if released {
			return
		}
		if len(s.stack) != depth || s.stack[depth-1] != arena {
			panic(fmt.Sprintf("releasing scope of arena %d out of order", arena.ID()))
		}
		released = true
		s.stack[depth-1] = nil
		s.stack = s.stack[:depth-1]
	}
}

// Current returns the active arena, or nil outside of any scope.
func (s *Scope) Current() *Arena {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

func (s *Scope) Depth() int {
	return len(s.stack)
}

// Allocate allocates from the active arena.
func (s *Scope) Allocate(n int) Block {
	arena := s.Current()
	if arena == nil {
		panic("allocation outside of any arena scope")
	}
	return arena.Allocate(n)
}
