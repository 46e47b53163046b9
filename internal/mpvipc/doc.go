// Package mpvipc implements the client side of mpv's JSON IPC protocol
// (--input-ipc-server).
//
// Every Send is an independent exchange: dial the unix socket, write one
// JSON object terminated by a newline, read until a reply is recognised or
// the idle window passes, and return the first well-formed reply. Event
// notifications mpv interleaves with replies are skipped by FirstReply.
//
// Failure handling:
//   - Socket missing or refusing connections: retried with exponential
//     backoff, then ErrUnavailable
//   - No reply within the idle window: nil Response, nil error
//   - Malformed data: ignored, nil Response
package mpvipc
