// Package tokens holds the allow-list of token contracts trusted for ledger output.
package tokens

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Registry maps token contract addresses to canonical ticker symbols.
// A Registry is immutable once constructed; use With to derive an extended copy.
// Symbols reported by the explorer are never consulted.
type Registry struct {
	symbols map[common.Address]string
}

// NewRegistry builds a Registry from the given mapping. The input map is copied.
func NewRegistry(symbols map[common.Address]string) *Registry {
	return &Registry{symbols: maps.Clone(symbols)}
}

// Arbitrum returns the default allow-list for Arbitrum One.
func Arbitrum() *Registry {
	return NewRegistry(map[common.Address]string{
		common.HexToAddress("0xff970a61a04b1ca14834a43f5de4533ebddb5cc8"): "USDC",
		common.HexToAddress("0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9"): "USDT",
		common.HexToAddress("0xda10009cbd5d07dd0cecc66161fc93d7c9000da1"): "DAI",
		common.HexToAddress("0x2f2a2543b76a4166549f7aab2e75bef0aefc5b63"): "WBTC",
		common.HexToAddress("0x82af49447d8a07e3bd95bd0d56f35241523fbab1"): "WETH",
	})
}

// Symbol returns the canonical symbol for a contract, if it is allow-listed.
func (r *Registry) Symbol(contract common.Address) (string, bool) {
	if r == nil {
		return "", false
	}
	sym, ok := r.symbols[contract]
	return sym, ok
}

// Len returns the number of allow-listed contracts.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.symbols)
}

// Contracts returns the allow-listed contracts sorted by address.
func (r *Registry) Contracts() []common.Address {
	if r == nil {
		return nil
	}
	return slices.SortedFunc(maps.Keys(r.symbols), func(a, b common.Address) int {
		return a.Cmp(b)
	})
}

// With returns a new Registry containing r's entries plus extra.
// Entries in extra override r's entries for the same contract.
func (r *Registry) With(extra map[common.Address]string) *Registry {
	merged := make(map[common.Address]string, r.Len()+len(extra))
	if r != nil {
		maps.Copy(merged, r.symbols)
	}
	maps.Copy(merged, extra)
	return &Registry{symbols: merged}
}

// ParseEntry parses an "ADDRESS=SYMBOL" pair as accepted by the --token flag.
func ParseEntry(s string) (common.Address, string, error) {
	addr, sym, ok := strings.Cut(s, "=")
	if !ok {
		return common.Address{}, "", fmt.Errorf("invalid token entry %q: expected ADDRESS=SYMBOL", s)
	}
	addr = strings.TrimSpace(addr)
	sym = strings.TrimSpace(sym)
	if !common.IsHexAddress(addr) {
		return common.Address{}, "", fmt.Errorf("invalid token entry %q: %q is not a hex address", s, addr)
	}
	if sym == "" {
		return common.Address{}, "", fmt.Errorf("invalid token entry %q: empty symbol", s)
	}
	return common.HexToAddress(addr), strings.ToUpper(sym), nil
}

// ParseEntries parses every --token value.
func ParseEntries(entries []string) (map[common.Address]string, error) {
	extra := make(map[common.Address]string, len(entries))
	for _, e := range entries {
		addr, sym, err := ParseEntry(e)
		if err != nil {
			return nil, err
		}
		extra[addr] = sym
	}
	return extra, nil
}
