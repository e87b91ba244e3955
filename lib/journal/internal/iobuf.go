package internal

// IoBuf is a growable byte buffer that is filled at the back and consumed from the front.
//
// The readable region is data[start:end]. Free space lives behind end. When the free tail
// is too small, the readable region is first moved to the front of the backing array and
// only if that still does not suffice the array is grown.
type IoBuf struct {
	data  []byte
	start int
	end   int
}

// NewIoBuf creates a buffer with the given initial capacity
func NewIoBuf(capacity int) *IoBuf {
	if capacity < 0 {
		capacity = 0
	}
	return &IoBuf{data: make([]byte, capacity)}
}

// Len returns the number of readable bytes
func (b *IoBuf) Len() int {
	return b.end - b.start
}

// Cap returns the size of the backing array
func (b *IoBuf) Cap() int {
	return len(b.data)
}

// Bytes returns the readable region. The slice is only valid until the next call
// to AppendBuffer, ConsumeInput or Clear.
func (b *IoBuf) Bytes() []byte {
	return b.data[b.start:b.end]
}

// AppendBuffer returns the free tail of the buffer, guaranteed to be at least min bytes long.
// Bytes written into it become readable after CommitWrite.
func (b *IoBuf) AppendBuffer(min int) []byte {
	if len(b.data)-b.end >= min {
		return b.data[b.end:]
	}

	readable := b.Len()

	// Compact if the consumed prefix gives us enough room
	if len(b.data)-readable >= min {
		copy(b.data, b.data[b.start:b.end])
		b.start, b.end = 0, readable
		return b.data[b.end:]
	}

	// Grow: at least double, at least enough for min
	newCap := 2 * len(b.data)
	if newCap < readable+min {
		newCap = readable + min
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[b.start:b.end])
	b.data = grown
	b.start, b.end = 0, readable
	return b.data[b.end:]
}

// CommitWrite marks n bytes of the slice returned by AppendBuffer as readable
func (b *IoBuf) CommitWrite(n int) {
	if n < 0 || b.end+n > len(b.data) {
		panic("iobuf: commit beyond free space")
	}
	b.end += n
}

// ConsumeInput discards n bytes from the front of the readable region
func (b *IoBuf) ConsumeInput(n int) {
	if n < 0 || n > b.Len() {
		panic("iobuf: consume beyond readable data")
	}
	b.start += n

	// Rewind when empty, so the next fill starts at the front again
	if b.start == b.end {
		b.start, b.end = 0, 0
	}
}

// Clear drops all readable bytes but keeps the backing array
func (b *IoBuf) Clear() {
	b.start, b.end = 0, 0
}
