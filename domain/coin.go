package domain

import (
	"math"

	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
)

// CoinTransaction is a committed coin#post_transaction. Spent[i] is set once
// output i is consumed by a later transaction.
type CoinTransaction struct {
	ID       identity.Base64URLData `json:"id"`
	Sender   identity.PublicKey     `json:"sender"`
	Coinbase bool                   `json:"coinbase"`
	Version  int                    `json:"version"`
	LockTime int64                  `json:"lock_time"`
	Inputs   []messagedata.TxInput  `json:"inputs"`
	Outputs  []messagedata.TxOutput `json:"outputs"`
	Spent    []bool                 `json:"spent"`
}

func (t *CoinTransaction) clone() CoinTransaction {
	c := *t
	c.Inputs = append([]messagedata.TxInput{}, t.Inputs...)
	c.Outputs = append([]messagedata.TxOutput{}, t.Outputs...)
	c.Spent = append([]bool{}, t.Spent...)
	return c
}

type outpoint struct {
	tx    string
	index int
}

func (sm *StateMachine) postTransaction(env Envelope, d *messagedata.PostTransaction) (Outcome, error) {
	segs := env.Channel.Segments
	if len(segs) != 1 || segs[0] != protocol.CoinSegment {
		return Outcome{}, invalidData("transactions go to the coin channel, not %s", env.Channel)
	}
	if _, ok := sm.repo.transactions[d.TransactionID.String()]; ok {
		return Outcome{}, &DuplicateResourceError{Kind: kindTransaction, ID: d.TransactionID}
	}
	tx := d.Transaction

	var spends []outpoint
	if tx.IsCoinbase() {
		if !tx.Inputs[0].Script.PublicKey.Equal(sm.repo.lao.Organizer) {
			return Outcome{}, &AccessDeniedError{Sender: env.Sender(), Reason: "only the organizer mints coins"}
		}
	} else {
		var total int64
		seen := map[outpoint]bool{}
		for i, in := range tx.Inputs {
			if in.TxOutHash.Equal(messagedata.CoinbaseHash) {
				return Outcome{}, invalidData("input %d spends the coinbase outside a coinbase transaction", i)
			}
			prev, ok := sm.repo.transactions[in.TxOutHash.String()]
			if !ok {
				return Outcome{}, &UnknownEntityError{Kind: kindTransaction, ID: in.TxOutHash}
			}
			if in.TxOutIndex >= len(prev.Outputs) {
				return Outcome{}, invalidData("input %d spends output %d of a transaction with %d outputs", i, in.TxOutIndex, len(prev.Outputs))
			}
			op := outpoint{tx: in.TxOutHash.String(), index: in.TxOutIndex}
			if seen[op] {
				return Outcome{}, invalidData("input %d spends the same output twice", i)
			}
			seen[op] = true
			out := prev.Outputs[in.TxOutIndex]
			if messagedata.PublicKeyHash(in.Script.PublicKey) != out.Script.PublicKeyHash {
				return Outcome{}, &AccessDeniedError{Sender: env.Sender(), Reason: "input spends an output paid to another key"}
			}
			if prev.Spent[in.TxOutIndex] {
				return Outcome{}, &InvalidStateTransitionError{Entity: kindTransaction, ID: in.TxOutHash, State: "spent", Action: d.Action()}
			}
			if out.Value > math.MaxInt64-total {
				return Outcome{}, invalidData("input total overflows")
			}
			total += out.Value
			spends = append(spends, op)
		}
		if total < tx.OutputTotal() {
			return Outcome{}, invalidData("outputs total %d exceeds inputs total %d", tx.OutputTotal(), total)
		}
	}

	for _, op := range spends {
		sm.repo.transactions[op.tx].Spent[op.index] = true
	}
	id := d.TransactionID.String()
	sm.repo.transactions[id] = &CoinTransaction{
		ID:       d.TransactionID,
		Sender:   env.Sender(),
		Coinbase: tx.IsCoinbase(),
		Version:  tx.Version,
		LockTime: tx.LockTime,
		Inputs:   append([]messagedata.TxInput{}, tx.Inputs...),
		Outputs:  append([]messagedata.TxOutput{}, tx.Outputs...),
		Spent:    make([]bool, len(tx.Outputs)),
	}
	sm.repo.transactionOrder = append(sm.repo.transactionOrder, id)
	sm.logger.Info("transaction posted",
		"transaction_id", id,
		"coinbase", tx.IsCoinbase(),
		"value", tx.OutputTotal())
	return Outcome{Produced: []identity.Base64URLData{d.TransactionID}}, nil
}

// Balance sums the unspent outputs paid to pubkeyHash.
func (s Snapshot) Balance(pubkeyHash string) int64 {
	var total int64
	for _, tx := range s.Transactions {
		for i, out := range tx.Outputs {
			if !tx.Spent[i] && out.Script.PublicKeyHash == pubkeyHash {
				total += out.Value
			}
		}
	}
	return total
}
