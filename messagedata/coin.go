package messagedata

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/luca-patrignani/popcore/identity"
)

// ScriptP2PKH is the only script type: pay to the hash of a public key.
const ScriptP2PKH = "P2PKH"

// CoinbaseHash is the tx_out_hash of the single input of a coinbase
// transaction, 32 zero bytes.
var CoinbaseHash = identity.Base64URLData(make([]byte, 32))

type InputScript struct {
	Type      string             `json:"type"`
	PublicKey identity.PublicKey `json:"pubkey"`
	Signature identity.Signature `json:"sig"`
}

// TxInput spends output TxOutIndex of transaction TxOutHash.
type TxInput struct {
	TxOutHash  identity.Base64URLData `json:"tx_out_hash"`
	TxOutIndex int                    `json:"tx_out_index"`
	Script     InputScript            `json:"script"`
}

type OutputScript struct {
	Type          string `json:"type"`
	PublicKeyHash string `json:"pubkey_hash"`
}

type TxOutput struct {
	Value  int64        `json:"value"`
	Script OutputScript `json:"script"`
}

type Transaction struct {
	Version  int        `json:"version"`
	Inputs   []TxInput  `json:"inputs"`
	Outputs  []TxOutput `json:"outputs"`
	LockTime int64      `json:"lock_time"`
}

// IsCoinbase reports whether tx mints coins instead of spending outputs.
func (tx Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].TxOutHash.Equal(CoinbaseHash) && tx.Inputs[0].TxOutIndex == 0
}

// SigningData is what every input signs: the spent outputs followed by the
// new outputs, concatenated.
func (tx Transaction) SigningData() []byte {
	var sb strings.Builder
	for _, in := range tx.Inputs {
		sb.WriteString(in.TxOutHash.String())
		sb.WriteString(strconv.Itoa(in.TxOutIndex))
	}
	for _, out := range tx.Outputs {
		sb.WriteString(strconv.FormatInt(out.Value, 10))
		sb.WriteString(out.Script.Type)
		sb.WriteString(out.Script.PublicKeyHash)
	}
	return []byte(sb.String())
}

// OutputTotal sums the output values. Verify guarantees it does not
// overflow.
func (tx Transaction) OutputTotal() int64 {
	var total int64
	for _, out := range tx.Outputs {
		total += out.Value
	}
	return total
}

// PublicKeyHash is the pubkey_hash an output pays to.
func PublicKeyHash(key identity.PublicKey) string {
	return identity.Hash(key.String()).String()
}

// TransactionID hashes the transaction fields in lexicographic order of
// their names.
func TransactionID(tx Transaction) identity.Base64URLData {
	parts := make([]any, 0, 5*len(tx.Inputs)+3*len(tx.Outputs)+2)
	for _, in := range tx.Inputs {
		parts = append(parts,
			in.Script.PublicKey.String(),
			in.Script.Signature.String(),
			in.Script.Type,
			in.TxOutHash.String(),
			in.TxOutIndex)
	}
	parts = append(parts, tx.LockTime)
	for _, out := range tx.Outputs {
		parts = append(parts, out.Script.PublicKeyHash, out.Script.Type, out.Value)
	}
	parts = append(parts, tx.Version)
	return identity.Hash(parts...)
}

type coinSigner interface {
	PublicKey() identity.PublicKey
	Sign(data []byte) (identity.Signature, error)
}

// PostTransaction is coin#post_transaction.
type PostTransaction struct {
	TransactionID identity.Base64URLData `json:"transaction_id"`
	Transaction   Transaction            `json:"transaction"`
}

// NewPostTransaction signs every input of tx with signer, which must own
// the spent outputs, and derives the transaction id.
func NewPostTransaction(signer coinSigner, tx Transaction) (*PostTransaction, error) {
	tx.Inputs = append([]TxInput{}, tx.Inputs...)
	sig, err := signer.Sign(tx.SigningData())
	if err != nil {
		return nil, err
	}
	for i := range tx.Inputs {
		tx.Inputs[i].Script = InputScript{Type: ScriptP2PKH, PublicKey: signer.PublicKey(), Signature: sig}
	}
	return &PostTransaction{TransactionID: TransactionID(tx), Transaction: tx}, nil
}

func (*PostTransaction) Object() string { return ObjectCoin }
func (*PostTransaction) Action() string { return ActionPostTransaction }

func (p *PostTransaction) Verify(identity.Base64URLData) error {
	tx := p.Transaction
	if len(tx.Inputs) == 0 {
		return malformed("transaction without inputs")
	}
	if len(tx.Outputs) == 0 {
		return malformed("transaction without outputs")
	}
	var total int64
	for i, out := range tx.Outputs {
		if out.Script.Type != ScriptP2PKH {
			return malformed("output %d has script type %q", i, out.Script.Type)
		}
		if out.Script.PublicKeyHash == "" {
			return malformed("output %d has no pubkey_hash", i)
		}
		if out.Value <= 0 {
			return malformed("output %d has value %d, must be positive", i, out.Value)
		}
		if out.Value > math.MaxInt64-total {
			return malformed("output total overflows")
		}
		total += out.Value
	}
	data := tx.SigningData()
	for i, in := range tx.Inputs {
		if in.Script.Type != ScriptP2PKH {
			return malformed("input %d has script type %q", i, in.Script.Type)
		}
		if in.TxOutIndex < 0 {
			return malformed("input %d has negative tx_out_index", i)
		}
		if !in.Script.PublicKey.Verify(in.Script.Signature, data) {
			return fmt.Errorf("%w: input %d", identity.ErrInvalidSignature, i)
		}
	}
	return checkID("transaction id", p.TransactionID, TransactionID(tx))
}
