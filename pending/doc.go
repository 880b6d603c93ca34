// Package pending buffers messages whose causal predecessor has not been
// observed yet.
//
// A message is parked under the id it waits for. When a committed message
// produces that id, the parked messages are replayed in arrival order. A
// replay may produce further ids, which unblocks the messages waiting on
// them in turn. Entries live until they are replayed or the resolver is
// cleared with its LAO.
package pending
