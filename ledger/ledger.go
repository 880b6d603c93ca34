package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/protocol"
)

var (
	ErrDuplicate = errors.New("message already recorded")
	ErrNotFound  = errors.New("message not recorded")
)

const genesisPrevHash = "0"

type Ledger struct {
	mu     sync.RWMutex
	blocks []Block
	byID   map[string]int
	now    func() time.Time
}

// New creates a ledger holding only its genesis block.
func New() *Ledger {
	l := &Ledger{
		blocks: make([]Block, 0),
		byID:   map[string]int{},
		now:    time.Now,
	}
	genesis := Block{
		Index:     0,
		Timestamp: l.now().Unix(),
		PrevHash:  genesisPrevHash,
		Metadata:  Metadata{Object: "genesis"},
	}
	genesis.Hash = calculateHash(genesis)
	l.blocks = append(l.blocks, genesis)
	return l
}

// Append records msg received on channel. It fails with ErrDuplicate if a
// message with the same id is already recorded.
func (l *Ledger) Append(channel string, msg protocol.MessageGeneral, meta Metadata) (Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := msg.MessageID.String()
	if _, ok := l.byID[key]; ok {
		return Block{}, fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	latest := l.blocks[len(l.blocks)-1]

	newBlock := Block{
		Index:     latest.Index + 1,
		Timestamp: l.now().Unix(),
		PrevHash:  latest.Hash,
		Channel:   channel,
		Message:   msg.Clone(),
		Metadata:  meta,
	}
	newBlock.Hash = calculateHash(newBlock)

	if err := validateBlock(newBlock, latest); err != nil {
		return Block{}, fmt.Errorf("invalid block: %w", err)
	}

	l.blocks = append(l.blocks, newBlock)
	l.byID[key] = newBlock.Index
	return newBlock, nil
}

// Contains reports whether a message with this id was recorded.
func (l *Ledger) Contains(id identity.MessageID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byID[id.String()]
	return ok
}

// AddWitnessSignature attaches a witness signature to a recorded message.
// It reports whether the signature was new.
func (l *Ledger) AddWitnessSignature(id identity.MessageID, w protocol.WitnessSignature) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byID[id.String()]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l.blocks[idx].Message.AddWitnessSignature(w), nil
}

// Len is the number of recorded messages, genesis excluded.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks) - 1
}

// Records returns every recorded block after genesis, in acceptance order.
func (l *Ledger) Records() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Block, 0, len(l.blocks)-1)
	for _, b := range l.blocks[1:] {
		b.Message = b.Message.Clone()
		out = append(out, b)
	}
	return out
}

// Verify validates the genesis block, the hash chain and every recorded
// envelope.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.blocks) == 0 {
		return fmt.Errorf("empty ledger")
	}
	if l.blocks[0].PrevHash != genesisPrevHash {
		return fmt.Errorf("invalid genesis block")
	}
	for i := 1; i < len(l.blocks); i++ {
		current := l.blocks[i]
		if err := validateBlock(current, l.blocks[i-1]); err != nil {
			return fmt.Errorf("block %d invalid: %w", i, err)
		}
		if err := current.Message.Verify(); err != nil {
			return fmt.Errorf("block %d invalid: %w", i, err)
		}
	}
	return nil
}

func validateBlock(current, previous Block) error {
	if current.Index != previous.Index+1 {
		return fmt.Errorf("invalid index: expected %d, got %d", previous.Index+1, current.Index)
	}
	if current.PrevHash != previous.Hash {
		return fmt.Errorf("invalid prev hash: expected %s, got %s", previous.Hash, current.PrevHash)
	}
	expectedHash := calculateHash(current)
	if current.Hash != expectedHash {
		return fmt.Errorf("invalid hash: expected %s, got %s", expectedHash, current.Hash)
	}
	return nil
}

// calculateHash covers the position, the channel and the message id; the id
// itself commits to the data and the sender signature.
func calculateHash(b Block) string {
	data := fmt.Sprintf("%d%d%s%s%s",
		b.Index,
		b.Timestamp,
		b.PrevHash,
		b.Channel,
		b.Message.MessageID.String(),
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
