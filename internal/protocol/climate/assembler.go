package climate

// Assembler reassembles complete frames from arbitrary stream chunks.
// One socket read does not map to one frame: partial and coalesced
// reads are both expected.
type Assembler struct {
	buf []byte
	// Dropped counts bytes discarded while resynchronizing to a header.
	Dropped int
}

// Push appends one stream chunk and returns every complete frame it closed.
func (a *Assembler) Push(chunk []byte) [][]byte {
	a.buf = append(a.buf, chunk...)
	var frames [][]byte
	for {
		a.resync()
		if len(a.buf) < 2 {
			return frames
		}
		declared := int(a.buf[1])
		if declared < minFrameLen {
			a.skip(1)
			continue
		}
		if len(a.buf) < declared {
			return frames
		}
		if a.buf[declared-1] != FrameETB {
			a.skip(1)
			continue
		}
		frame := make([]byte, declared)
		copy(frame, a.buf[:declared])
		a.buf = a.buf[declared:]
		frames = append(frames, frame)
	}
}

// Reset discards buffered bytes, used when the underlying stream restarts.
func (a *Assembler) Reset() {
	a.buf = nil
}

func (a *Assembler) resync() {
	for len(a.buf) > 0 && a.buf[0] != FrameESC {
		a.skip(1)
	}
}

func (a *Assembler) skip(n int) {
	a.buf = a.buf[n:]
	a.Dropped += n
}
