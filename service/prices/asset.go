package prices

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// nativeKeyPrefix is the cache key prefix of the chain's native asset.
const nativeKeyPrefix = "eth"

// AssetID identifies a priced asset: the native asset when Contract is nil,
// otherwise an ERC-20 token contract.
type AssetID struct {
	Contract *common.Address
}

// Native returns the native asset.
func Native() AssetID {
	return AssetID{}
}

// Token returns the asset of a token contract.
func Token(contract common.Address) AssetID {
	return AssetID{Contract: &contract}
}

// IsNative reports whether the asset is the chain's native asset.
func (a AssetID) IsNative() bool {
	return a.Contract == nil
}

// String returns "eth" or the lowercase contract address.
func (a AssetID) String() string {
	if a.Contract == nil {
		return nativeKeyPrefix
	}
	return strings.ToLower(a.Contract.Hex())
}

// Key returns the cache key for the asset on the UTC day of t.
func (a AssetID) Key(t time.Time) string {
	return a.String() + "_" + t.UTC().Format(time.DateOnly)
}

// ParseAssetID accepts "eth" (any case) or a hex contract address.
func ParseAssetID(s string) (AssetID, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, nativeKeyPrefix) {
		return Native(), nil
	}
	if !common.IsHexAddress(s) {
		return AssetID{}, fmt.Errorf("invalid asset %q: want %q or a contract address", s, nativeKeyPrefix)
	}
	return Token(common.HexToAddress(s)), nil
}

// ParseKey splits a cache key back into its asset and day.
func ParseKey(key string) (AssetID, time.Time, error) {
	i := strings.LastIndex(key, "_")
	if i < 0 {
		return AssetID{}, time.Time{}, fmt.Errorf("invalid cache key %q", key)
	}
	asset, err := ParseAssetID(key[:i])
	if err != nil {
		return AssetID{}, time.Time{}, fmt.Errorf("invalid cache key %q: %w", key, err)
	}
	day, err := time.Parse(time.DateOnly, key[i+1:])
	if err != nil {
		return AssetID{}, time.Time{}, fmt.Errorf("invalid cache key %q: %w", key, err)
	}
	return asset, day, nil
}
