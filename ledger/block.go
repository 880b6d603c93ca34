package ledger

import "github.com/luca-patrignani/popcore/protocol"

// Block is one accepted message.
type Block struct {
	Index     int                     `json:"index"`
	Timestamp int64                   `json:"timestamp"`
	PrevHash  string                  `json:"prev_hash"`
	Hash      string                  `json:"hash"`
	Channel   string                  `json:"channel"`
	Message   protocol.MessageGeneral `json:"message"`
	Metadata  Metadata                `json:"metadata"`
}

type Metadata struct {
	Object string `json:"object,omitempty"`
	Action string `json:"action,omitempty"`
}
