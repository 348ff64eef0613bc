package explorer

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NormalTransaction is one record of the explorer's txlist listing.
// Every field arrives as a string and is validated during conversion.
type NormalTransaction struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	IsError         string `json:"isError"`
	ContractAddress string `json:"contractAddress"`
	FunctionName    string `json:"functionName"`
}

// TokenTransferEvent is one record of the explorer's tokentx listing.
type TokenTransferEvent struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	ContractAddress string `json:"contractAddress"`
	To              string `json:"to"`
	Value           string `json:"value"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// Transaction is a normal transaction enriched with the token transfer
// events emitted under the same hash.
type Transaction struct {
	Hash        common.Hash     `json:"hash"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   uint64          `json:"timestamp"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"` // nil for contract creation
	Value       *big.Int        `json:"value"`

	// Annotation fields. Tag, Category and Description resolve the
	// recipient first, then the sender. FromTag and ToTag carry each
	// side's own label.
	Tag         *string `json:"tag,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
	FromTag     *string `json:"from_tag,omitempty"`
	ToTag       *string `json:"to_tag,omitempty"`

	Transfers []TokenTransfer `json:"transfers"`
}

// Time returns the block timestamp in UTC.
func (t *Transaction) Time() time.Time {
	return time.Unix(int64(t.Timestamp), 0).UTC()
}

// Day returns the UTC calendar day of the block timestamp.
func (t *Transaction) Day() time.Time {
	ts := t.Time()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// IsRecipient reports whether address received the transaction's native value.
func (t *Transaction) IsRecipient(address common.Address) bool {
	return t.To != nil && *t.To == address
}

// TokenTransfer is an ERC-20 Transfer event. TokenName and TokenSymbol are
// whatever the explorer reported and are never trusted for valuation.
type TokenTransfer struct {
	Contract    common.Address  `json:"contract"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       *big.Int        `json:"value"`
	TokenName   string          `json:"token_name"`
	TokenSymbol string          `json:"token_symbol"`
	Decimals    uint8           `json:"decimals"`
}
