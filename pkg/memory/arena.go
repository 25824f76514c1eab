/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package memory implements the private heaps of simulated actors.  Each
// actor owns an Arena spanning a distinct range of a simulated address
// space.  Crashing an actor resets its arena in constant time, invalidating
// every block handed out before.
package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Addr is an address in the simulated address space.
type Addr uint64

const (
	headerSize = 16

	minClassShift = 4
	maxClassShift = 14
	numClasses    = maxClassShift - minClassShift + 1

	// canaries mark the state of a block in its header.
	allocatedCanary uint32 = 0xA110CA7E
	freedCanary     uint32 = 0xF4EEB10C

	// maxBlockSize is the largest block whose capacity fits the header.
	maxBlockSize = math.MaxUint32 &^ (headerSize - 1)

	// DefaultSize is the address range reserved for each arena.
	DefaultSize = 64 << 20

	// arenaSpacing separates the base addresses of consecutive arenas.
	arenaSpacing = 1 << 40
)

// Block is a handle to an allocation.  It is only valid until the arena it
// was allocated from is reset.
type Block struct {
	arena      *Arena
	addr       Addr
	size       int
	generation uint64
}

func (b Block) Addr() Addr {
	return b.addr
}

func (b Block) Size() int {
	return b.size
}

func (b Block) IsZero() bool {
	return b.arena == nil
}

// Live reports whether the arena of the block was not reset since the block
// was allocated.
func (b Block) Live() bool {
	return b.arena != nil && b.generation == b.arena.generation
}

// Bytes returns the payload of the block, the slice aliases the arena.
func (b Block) Bytes() []byte {
	b.arena.checkLive(b)
	offset := b.arena.offset(b.addr)
	return b.arena.memory[offset : offset+uint64(b.size)]
}

// Arena is a bump allocator over a lazily materialized address range with
// power of two size class free lists in front of it.  Blocks larger than the
// largest class are bump allocated and never recycled.
type Arena struct {
	id   int
	base Addr
	size uint64

	memory  []byte
	cursor  uint64
	zfilled uint64

	// freeLists hold the offset of the first free block of each class plus
	// one, zero marks an empty list.
	freeLists [numClasses]uint64

	generation uint64
	allocs     uint64
	frees      uint64
}

// NewArena reserves size bytes for the arena with the given id.  Arenas with
// distinct ids never share addresses.
func NewArena(id int, size uint64) *Arena {
	if size == 0 {
		size = DefaultSize
	}
	if size >= arenaSpacing {
		panic(fmt.Sprintf("arena size %d exceeds the address range of an arena", size))
	}
	return &Arena{
		id:   id,
		base: Addr(uint64(id+1) * arenaSpacing),
		size: size,
	}
}

func (a *Arena) ID() int {
	return a.id
}

func (a *Arena) Generation() uint64 {
	return a.generation
}

// BytesAllocated is the high-water mark of the bump cursor.
func (a *Arena) BytesAllocated() uint64 {
	return a.cursor
}

// Live is the number of blocks allocated and not yet freed in this generation.
func (a *Arena) Live() uint64 {
	return a.allocs - a.frees
}

// FromHere reports whether addr lies in the range of this arena.
func (a *Arena) FromHere(addr Addr) bool {
	return addr >= a.base && uint64(addr-a.base) < a.size
}

// Allocate returns a zeroed block of at least n bytes.
func (a *Arena) Allocate(n int) Block {
	if n < 0 {
		panic(fmt.Sprintf("arena %d: negative allocation of %d bytes", a.id, n))
	}
	if uint64(n) > maxBlockSize {
		panic(fmt.Sprintf("arena %d: allocation of %d bytes exceeds the block limit of %d bytes", a.id, n, uint64(maxBlockSize)))
	}

	class, capacity := sizeClass(n)
	var offset uint64
	if class >= 0 && a.freeLists[class] != 0 {
		offset = a.freeLists[class] - 1
		a.freeLists[class] = binary.LittleEndian.Uint64(a.memory[offset+8:])
		payload := a.memory[offset+headerSize : offset+headerSize+capacity]
		for i := range payload {
			payload[i] = 0
		}
	} else {
		offset = a.bump(headerSize + capacity)
	}

	binary.LittleEndian.PutUint32(a.memory[offset:], uint32(capacity))
	binary.LittleEndian.PutUint32(a.memory[offset+4:], allocatedCanary)
	binary.LittleEndian.PutUint64(a.memory[offset+8:], 0)
	a.allocs++

	return Block{
		arena:      a,
		addr:       a.base + Addr(offset+headerSize),
		size:       n,
		generation: a.generation,
	}
}

// Free returns the block to the free list of its size class.
func (a *Arena) Free(b Block) {
	if b.arena != a {
		panic(fmt.Sprintf("arena %d: freeing block at %#x owned by another arena", a.id, b.addr))
	}
	a.checkLive(b)

	offset := a.offset(b.addr) - headerSize
	if binary.LittleEndian.Uint32(a.memory[offset+4:]) != allocatedCanary {
		panic(fmt.Sprintf("arena %d: double free or corrupted header of block at %#x", a.id, b.addr))
	}

	capacity := uint64(binary.LittleEndian.Uint32(a.memory[offset:]))
	binary.LittleEndian.PutUint32(a.memory[offset+4:], freedCanary)
	a.frees++

	class, _ := sizeClass(int(capacity))
	if class < 0 {
		return
	}
	binary.LittleEndian.PutUint64(a.memory[offset+8:], a.freeLists[class])
	a.freeLists[class] = offset + 1
}

// Reset reclaims the whole arena in constant time.  The backing memory is
// kept, it is zeroed lazily as the cursor passes over it again.
func (a *Arena) Reset() {
	a.cursor = 0
	a.zfilled = 0
	a.freeLists = [numClasses]uint64{}
	a.generation++
	a.allocs = 0
	a.frees = 0
}

func (a *Arena) String() string {
	return fmt.Sprintf("arena %d (generation %d, %d bytes allocated, %d live blocks)", a.id, a.generation, a.cursor, a.Live())
}

func (a *Arena) bump(n uint64) uint64 {
	if a.cursor+n > a.size {
		panic(fmt.Sprintf("arena %d overflow: allocating %d bytes with %d of %d bytes in use", a.id, n, a.cursor, a.size))
	}

	offset := a.cursor
	a.cursor += n

	if a.cursor > uint64(len(a.memory)) {
		grown := uint64(2 * len(a.memory))
		if grown < a.cursor {
			grown = a.cursor
		}
		if grown > a.size {
			grown = a.size
		}
		memory := make([]byte, grown)
		copy(memory, a.memory[:a.zfilled])
		a.memory = memory
	}

	if a.cursor > a.zfilled {
		dirty := a.memory[a.zfilled:a.cursor]
		for i := range dirty {
			dirty[i] = 0
		}
		a.zfilled = a.cursor
	}

	return offset
}

func (a *Arena) offset(addr Addr) uint64 {
	if !a.FromHere(addr) {
		panic(fmt.Sprintf("address %#x does not belong to arena %d", addr, a.id))
	}
	return uint64(addr - a.base)
}

func (a *Arena) checkLive(b Block) {
	if b.generation != a.generation {
		panic(fmt.Sprintf("arena %d: block at %#x from generation %d used after reset to generation %d", a.id, b.addr, b.generation, a.generation))
	}
}

// sizeClass returns the class index and capacity for an allocation of n
// bytes, the class is -1 for oversized allocations.
func sizeClass(n int) (int, uint64) {
	for class := 0; class < numClasses; class++ {
		capacity := uint64(1) << (minClassShift + class)
		if uint64(n) <= capacity {
			return class, capacity
		}
	}
	// keep oversized blocks aligned to the header size
	return -1, (uint64(n) + headerSize - 1) &^ (headerSize - 1)
}
