// Package server implements the Wavechat relay: clients join named rooms
// over a WebSocket connection and broadcast short text messages to every
// other member of the same room, receiving join/leave notifications and a
// live member count.
//
// The implementation is organized into specialized files for the event wire
// format, the room registry, connection handling, configuration, and HTTP
// wiring to keep the codebase maintainable and testable as the project
// grows.
package server
