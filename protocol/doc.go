// Package protocol implements the JSON-RPC framing spoken with the backend.
//
// # Frames
//
// Requests: subscribe, unsubscribe, publish and catchup, each carrying a
// caller-chosen integer id and a channel.
//
// Answers: a result (0 for acknowledgements, a list of messages for catchup)
// or an error with a code and a description, echoing the request id.
//
// Broadcast: an unsolicited push of one message on a channel, without id.
//
// # Messages
//
// MessageGeneral is the signed envelope. It keeps the raw data bytes exactly
// as received, since both the sender signature and the message id are
// computed over them; re-encoding the payload would break verification.
package protocol
