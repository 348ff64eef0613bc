package explorer

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultDecimals is assumed when a transfer reports no usable decimal count.
const DefaultDecimals = 18

// Skip reasons used in logs and metrics.
const (
	reasonMissingHash   = "missing_hash"
	reasonMissingSender = "missing_sender"
	reasonDuplicate     = "duplicate_hash"
)

// recordError explains why a raw record was dropped.
type recordError struct {
	reason string
	detail string
}

func (e *recordError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrMalformedRecord, e.reason, e.detail)
}

func (e *recordError) Unwrap() error { return ErrMalformedRecord }

// parseHash accepts a 0x-prefixed 32 byte hex string.
func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// parseAddress accepts a hex address with or without the 0x prefix.
func parseAddress(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseOptionalAddress returns nil for an empty or invalid recipient.
func parseOptionalAddress(s string) *common.Address {
	addr, ok := parseAddress(s)
	if !ok {
		return nil
	}
	return &addr
}

// parseAmount reads a base-10 integer; ok is false when the input was
// present but unusable, in which case the amount is zero.
func parseAmount(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int), false
	}
	return v, true
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseDecimals(s string) uint8 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return DefaultDecimals
	}
	return uint8(v)
}

// transactionFromWire builds a domain transaction without transfers.
// valueOK is false when the value field could not be read and was zeroed.
func transactionFromWire(raw NormalTransaction) (tx *Transaction, valueOK bool, err error) {
	hash, ok := parseHash(raw.Hash)
	if !ok {
		return nil, false, &recordError{reason: reasonMissingHash, detail: fmt.Sprintf("hash %q", raw.Hash)}
	}
	from, ok := parseAddress(raw.From)
	if !ok {
		return nil, false, &recordError{reason: reasonMissingSender, detail: fmt.Sprintf("tx %s from %q", hash.Hex(), raw.From)}
	}
	value, valueOK := parseAmount(raw.Value)

	return &Transaction{
		Hash:        hash,
		BlockNumber: parseUint(raw.BlockNumber),
		Timestamp:   parseUint(raw.TimeStamp),
		From:        from,
		To:          parseOptionalAddress(raw.To),
		Value:       value,
	}, valueOK, nil
}

// transferFromWire converts one transfer event and returns the hash it belongs to.
func transferFromWire(raw TokenTransferEvent) (common.Hash, TokenTransfer, error) {
	hash, ok := parseHash(raw.Hash)
	if !ok {
		return common.Hash{}, TokenTransfer{}, &recordError{reason: reasonMissingHash, detail: fmt.Sprintf("hash %q", raw.Hash)}
	}
	from, ok := parseAddress(raw.From)
	if !ok {
		return common.Hash{}, TokenTransfer{}, &recordError{reason: reasonMissingSender, detail: fmt.Sprintf("transfer in %s from %q", hash.Hex(), raw.From)}
	}
	contract, ok := parseAddress(raw.ContractAddress)
	if !ok {
		return common.Hash{}, TokenTransfer{}, &recordError{reason: "missing_contract", detail: fmt.Sprintf("transfer in %s contract %q", hash.Hex(), raw.ContractAddress)}
	}
	value, _ := parseAmount(raw.Value)

	return hash, TokenTransfer{
		Contract:    contract,
		From:        from,
		To:          parseOptionalAddress(raw.To),
		Value:       value,
		TokenName:   raw.TokenName,
		TokenSymbol: raw.TokenSymbol,
		Decimals:    parseDecimals(raw.TokenDecimal),
	}, nil
}
