package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeMember AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Member sub-types. Clearing is a pass-through account: every flow
	// that touches a member nets it back to zero within the same batch.
	SubTypeMemberClearing AccountSubType = iota

	// System sub-types
	SubTypeSystemPool
	SubTypeSystemTreasury

	// External sub-types
	SubTypeExternalPremiums
	SubTypeExternalDeposits
	SubTypeExternalPayouts
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDT": 1,
		"USDC": 2,
		"BTC":  3,
		"ETH":  4,
	}
	idToAsset = map[AssetID]string{
		1: "USDT",
		2: "USDC",
		3: "BTC",
		4: "ETH",
	}
)

// QuoteAsset is the single settlement asset: premiums, pool liquidity, and
// payouts are all denominated in it. Insured assets (BTC, ETH, ...) appear
// only in oracle quotes and policy terms, never in journal entries.
const QuoteAsset = "USDT"

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// QuoteAssetID returns the numeric ID of the settlement asset.
func QuoteAssetID() AssetID {
	id, _ := GetAssetID(QuoteAsset)
	return id
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for members, name bytes for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewMemberAccountKey creates a key for member accounts
func NewMemberAccountKey(memberID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeMember,
		EntityID: memberID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeMember:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("member:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath inverts AccountPath. Used when loading snapshot
// balances, which are stored keyed by path.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch parts[0] {
	case "member":
		if len(parts) != 4 {
			return AccountKey{}, fmt.Errorf("malformed member account path: %q", path)
		}
		memberID, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		subType, err := subTypeFromName(parts[2])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset", path)
		}
		return NewMemberAccountKey(memberID, subType, assetID), nil

	case "system", "external":
		if len(parts) != 3 {
			return AccountKey{}, fmt.Errorf("malformed account path: %q", path)
		}
		subType, err := subTypeFromName(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset", path)
		}
		if parts[0] == "system" {
			return NewSystemAccountKey(subType, assetID), nil
		}
		return NewExternalAccountKey(subType, assetID), nil
	}

	return AccountKey{}, fmt.Errorf("unknown account scope in path: %q", path)
}

func subTypeFromName(name string) (AccountSubType, error) {
	switch name {
	case "clearing":
		return SubTypeMemberClearing, nil
	case "pool":
		return SubTypeSystemPool, nil
	case "treasury":
		return SubTypeSystemTreasury, nil
	case "premiums":
		return SubTypeExternalPremiums, nil
	case "deposits":
		return SubTypeExternalDeposits, nil
	case "payouts":
		return SubTypeExternalPayouts, nil
	}
	return 0, fmt.Errorf("unknown account sub-type %q", name)
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeMemberClearing:
		return "clearing"
	case SubTypeSystemPool:
		return "pool"
	case SubTypeSystemTreasury:
		return "treasury"
	case SubTypeExternalPremiums:
		return "premiums"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalPayouts:
		return "payouts"
	default:
		return "unknown"
	}
}
