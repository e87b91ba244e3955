package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, b *IoBuf, data []byte) {
	t.Helper()
	tail := b.AppendBuffer(len(data))
	require.GreaterOrEqual(t, len(tail), len(data))
	copy(tail, data)
	b.CommitWrite(len(data))
}

func TestIoBufAppendConsume(t *testing.T) {
	b := NewIoBuf(8)
	fill(t, b, []byte("abcd"))
	require.Equal(t, 4, b.Len())
	require.Equal(t, []byte("abcd"), b.Bytes())

	b.ConsumeInput(2)
	require.Equal(t, []byte("cd"), b.Bytes())

	fill(t, b, []byte("ef"))
	require.Equal(t, []byte("cdef"), b.Bytes())
}

func TestIoBufCompactsBeforeGrowing(t *testing.T) {
	b := NewIoBuf(8)
	fill(t, b, []byte("abcdef"))
	b.ConsumeInput(5)

	// 1 readable byte, 2 free at the tail, 5 consumed at the front
	fill(t, b, []byte("ghijk"))
	require.Equal(t, 8, b.Cap(), "compaction should avoid a reallocation")
	require.Equal(t, []byte("fghijk"), b.Bytes())
}

func TestIoBufGrows(t *testing.T) {
	b := NewIoBuf(4)
	fill(t, b, []byte("abc"))
	fill(t, b, []byte("defghij"))
	require.GreaterOrEqual(t, b.Cap(), 10)
	require.Equal(t, []byte("abcdefghij"), b.Bytes())
}

func TestIoBufZeroCapacity(t *testing.T) {
	b := NewIoBuf(0)
	fill(t, b, []byte("x"))
	require.Equal(t, []byte("x"), b.Bytes())
}

func TestIoBufRewindWhenDrained(t *testing.T) {
	b := NewIoBuf(4)
	fill(t, b, []byte("abcd"))
	b.ConsumeInput(4)
	require.Equal(t, 0, b.Len())

	// the whole array is free again
	require.Len(t, b.AppendBuffer(4), 4)
}

func TestIoBufClear(t *testing.T) {
	b := NewIoBuf(4)
	fill(t, b, []byte("ab"))
	b.Clear()
	require.Equal(t, 0, b.Len())
	require.Empty(t, b.Bytes())
	require.Equal(t, 4, b.Cap())
}

func TestIoBufMisuse(t *testing.T) {
	b := NewIoBuf(2)
	require.Panics(t, func() { b.CommitWrite(3) })
	require.Panics(t, func() { b.ConsumeInput(1) })
}
