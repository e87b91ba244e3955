// Package http implements the HTTP control surface of a primary and a client for it.
//
// Writes are command scripts in the format of keyspace.ParseScript, posted to the
// database they start in:
//
//	curl -X POST localhost:8080/0 --data-binary $'SET a 1\nSELECT 2\nSET b 2'
//
// The server parses the script and appends all entries through an IBackend, either
// the local publisher (standalone primary) or a raft journal. Reads of single keys
// and the prometheus metrics of the process are served as well.
//
// The Client picks an endpoint round-robin for every request and retries failed
// requests on transport errors.
package http
