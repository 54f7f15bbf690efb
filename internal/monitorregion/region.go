// Package monitorregion implements the shared ring buffer of checked
// blocks: a fixed number of slots with classic empty/fill/mutex counting
// semaphores, shared between the checker (producer) and the printer
// (consumer).
package monitorregion

import (
	"github.com/minermesh/minermesh/internal/block"
	"github.com/minermesh/minermesh/internal/config"
	"github.com/minermesh/minermesh/internal/shm"
)

const (
	blocksOff = 0
	blocksLen = config.MaxBlocks * block.Size

	inOff  = blocksOff + blocksLen
	outOff = inOff + 4

	mutexOff = outOff + 4
	emptyOff = mutexOff + 4
	fillOff  = emptyOff + 4

	// Size is the total byte size of a MonitorRegion.
	Size = fillOff + 4
)

// Region is the mapped MonitorRegion plus its semaphores.
type Region struct {
	shm *shm.Region

	Mutex *shm.Sem
	Empty *shm.Sem
	Fill  *shm.Sem
}

// Open opens or creates the named MonitorRegion, initializing it only
// when this process created it. The monitor launcher creates it before
// spawning the checker and printer, which join it without initializing.
func Open(name string) (*Region, error) {
	raw, err := shm.Open(name, Size)
	if err != nil {
		return nil, err
	}
	r := &Region{
		shm:   raw,
		Mutex: shm.SemAt(raw.Data, mutexOff),
		Empty: shm.SemAt(raw.Data, emptyOff),
		Fill:  shm.SemAt(raw.Data, fillOff),
	}
	if raw.Role == shm.RoleInitializer {
		r.Mutex.Init(1)
		r.Empty.Init(config.MaxBlocks)
		r.Fill.Init(0)
		r.setIn(0)
		r.setOut(0)
	}
	return r, nil
}

// NewFromBytes builds a MonitorRegion directly over an already-mapped
// byte slice (size must be at least Size), always initializing it. Tests
// use this for the same reason minerregion.NewFromBytes exists: exercise
// the ring buffer in-process without a real /dev/shm file.
func NewFromBytes(data []byte) *Region {
	raw := shm.WrapForTest(data)
	r := &Region{
		shm:   raw,
		Mutex: shm.SemAt(raw.Data, mutexOff),
		Empty: shm.SemAt(raw.Data, emptyOff),
		Fill:  shm.SemAt(raw.Data, fillOff),
	}
	r.Mutex.Init(1)
	r.Empty.Init(config.MaxBlocks)
	r.Fill.Init(0)
	r.setIn(0)
	r.setOut(0)
	return r
}

func (r *Region) Close() error  { return r.shm.Close() }
func (r *Region) Unlink() error { return r.shm.Unlink() }

func (r *Region) in() int      { return int(readU32(r.shm.Data, inOff)) }
func (r *Region) out() int     { return int(readU32(r.shm.Data, outOff)) }
func (r *Region) setIn(v int)  { writeU32(r.shm.Data, inOff, uint32(v)) }
func (r *Region) setOut(v int) { writeU32(r.shm.Data, outOff, uint32(v)) }

func (r *Region) blockAt(i int) block.Block {
	var b block.Block
	off := blocksOff + i*block.Size
	_ = b.UnmarshalBinary(r.shm.Data[off : off+block.Size])
	return b
}

func (r *Region) setBlockAt(i int, b block.Block) {
	off := blocksOff + i*block.Size
	encoded, err := b.MarshalBinary()
	if err != nil {
		panic(err)
	}
	copy(r.shm.Data[off:off+block.Size], encoded)
}

// Push is the checker's producer step: wait(empty), wait(mutex), write,
// advance `in`, post(mutex), post(fill).
func (r *Region) Push(b block.Block, cancel <-chan struct{}) bool {
	if !r.Empty.Wait(cancel) {
		return false
	}
	if !r.Mutex.Wait(cancel) {
		r.Empty.Post()
		return false
	}
	in := r.in()
	r.setBlockAt(in, b)
	r.setIn((in + 1) % config.MaxBlocks)
	r.Mutex.Post()
	r.Fill.Post()
	return true
}

// Pop is the printer's consumer step: wait(fill), wait(mutex), read,
// advance `out`, post(mutex), post(empty).
func (r *Region) Pop(cancel <-chan struct{}) (block.Block, bool) {
	if !r.Fill.Wait(cancel) {
		return block.Block{}, false
	}
	if !r.Mutex.Wait(cancel) {
		r.Fill.Post()
		return block.Block{}, false
	}
	out := r.out()
	b := r.blockAt(out)
	r.setOut((out + 1) % config.MaxBlocks)
	r.Mutex.Post()
	r.Empty.Post()
	return b, true
}

func readU32(data []byte, off int) uint32 {
	return uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
}

func writeU32(data []byte, off int, v uint32) {
	data[off] = byte(v)
	data[off+1] = byte(v >> 8)
	data[off+2] = byte(v >> 16)
	data[off+3] = byte(v >> 24)
}
