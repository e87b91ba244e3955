// Package internal holds the staging buffer used by the journal reader.
//
// IoBuf models the reader's scratch space as an explicit cursor buffer: bytes pulled
// from a source are appended at the back, fully decoded entries are consumed from the
// front, and whatever belongs to an incomplete entry stays in between until more data
// arrives. The buffer never interprets its content.
//
// Usage:
//
//	buf := internal.NewIoBuf(4096)
//	tail := buf.AppendBuffer(512)   // free space, at least 512 bytes
//	n, _ := src.Read(tail)
//	buf.CommitWrite(n)              // make the bytes readable
//	parse(buf.Bytes())
//	buf.ConsumeInput(consumed)      // drop what was decoded
package internal
