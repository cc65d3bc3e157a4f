// Package server implements the connection-handling and message-routing
// engine of the chat server.
//
// The implementation is organized into specialized files for configuration,
// line transports (TCP and WebSocket), the per-connection peer state machine,
// routing and server commands, and the HTTP surface.
package server
