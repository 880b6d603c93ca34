// Package network carries JSON-RPC frames between the engine and a server.
//
// # Transports
//
// WebSocket: a gorilla/websocket connection driven by a read pump and a
// write pump running in one errgroup. Either pump failing tears the
// connection down. Dial opens the client side, Accept upgrades an incoming
// HTTP request (used by tests and local tooling).
//
// Pipe: two connected in-memory endpoints. Frames written on one end are
// read on the other, in order.
//
// Every transport exposes the same surface: Send one frame, receive frames
// from a channel that is closed when the connection ends, and Err to learn
// why it ended.
package network
