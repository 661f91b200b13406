// Package connection implements the stream transport and channel multiplexer.
//
// The Multiplexer:
//   - Owns at most one WebSocket connection at a time, opened by Stream
//   - Keeps a registry of channel handlers that survives reconnects
//   - In combined mode, adds and removes channels on the live connection with
//     SUBSCRIBE/UNSUBSCRIBE control messages
//   - In single mode, reconnects whenever its channel set changes
//   - Drops malformed frames and control acknowledgements
//
// Reconnection itself is left to the caller; see package retry.
package connection
