package vault

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/keelhq/keel/internal/codec"
	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/types"
)

// Keyspace namespaces. Vaults are keyed by big-endian id; positions are
// keyed (vault_id, 0x00, holder) for per-vault lookups, with a
// (holder, 0x00, vault_id) index so one prefix scan lists a holder's
// positions across vaults.
const (
	nsConfig           = "config"
	nsCounter          = "counter"
	nsVault            = "vault"
	nsPosition         = "position"
	nsPositionByHolder = "position_by_holder"
)

var (
	keyConfig      = []byte("config")
	keyNextVaultID = []byte("next_vault_id")
)

// Config is the component configuration, written once at instantiation.
type Config struct {
	Admin        types.AccountID `json:"admin"`
	DefaultDenom string          `json:"default_denom"`
	MaxFeeBps    uint32          `json:"max_fee_bps"`
}

// Vault is one pooled-deposit vault. TVL and total shares move together:
// after every mutation, total_shares is zero exactly when tvl is zero.
type Vault struct {
	ID          uint64          `json:"id"`
	Label       string          `json:"label"`
	Denom       string          `json:"denom"`
	Strategy    Strategy        `json:"strategy"`
	FeeBps      uint32          `json:"fee_bps"`
	TVL         types.Uint      `json:"tvl"`
	TotalShares types.Uint      `json:"total_shares"`
	CreatedAt   int64           `json:"created_at"`
	Allocations []AllocationLeg `json:"allocations"`
}

// Position is one holder's stake in one vault. Deleted when shares reach
// zero, so every stored position has positive shares.
type Position struct {
	VaultID     uint64          `json:"vault_id"`
	Address     types.AccountID `json:"address"`
	Shares      types.Uint      `json:"shares"`
	DepositedAt int64           `json:"deposited_at"`
}

// positionKey is (vault_id, 0x00, holder): per-vault scans group a
// vault's holders together.
func positionKey(vaultID uint64, holder types.AccountID) []byte {
	k := make([]byte, 0, 9+len(holder))
	k = append(k, store.U64Key(vaultID)...)
	k = append(k, 0x00)
	return append(k, holder...)
}

func loadConfig(ctx context.Context, kv store.KV) (Config, error) {
	raw, ok, err := kv.Get(ctx, nsConfig, keyConfig)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, engine.Newf(engine.CodeInvalidState, "vault component not initialized")
	}
	var cfg Config
	if err := codec.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func saveConfig(ctx context.Context, kv store.KV, cfg Config) error {
	raw, err := codec.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return kv.Set(ctx, nsConfig, keyConfig, raw)
}

func loadVault(ctx context.Context, kv store.KV, id uint64) (*Vault, error) {
	raw, ok, err := kv.Get(ctx, nsVault, store.U64Key(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.Newf(engine.CodeNotFound, "vault %d not found", id)
	}
	var v Vault
	if err := codec.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode vault %d: %w", id, err)
	}
	return &v, nil
}

func saveVault(ctx context.Context, kv store.KV, v *Vault) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode vault %d: %w", v.ID, err)
	}
	return kv.Set(ctx, nsVault, store.U64Key(v.ID), raw)
}

// loadPosition returns the holder's position, or nil when none exists.
func loadPosition(ctx context.Context, kv store.KV, vaultID uint64, holder types.AccountID) (*Position, error) {
	raw, ok, err := kv.Get(ctx, nsPosition, positionKey(vaultID, holder))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var p Position
	if err := codec.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode position %d/%s: %w", vaultID, holder, err)
	}
	return &p, nil
}

func savePosition(ctx context.Context, kv store.KV, p *Position) error {
	raw, err := codec.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode position %d/%s: %w", p.VaultID, p.Address, err)
	}
	if err := kv.Set(ctx, nsPosition, positionKey(p.VaultID, p.Address), raw); err != nil {
		return err
	}
	return kv.Set(ctx, nsPositionByHolder,
		store.AccountU64Key(string(p.Address), p.VaultID), []byte{1})
}

func deletePosition(ctx context.Context, kv store.KV, vaultID uint64, holder types.AccountID) error {
	if err := kv.Delete(ctx, nsPosition, positionKey(vaultID, holder)); err != nil {
		return err
	}
	return kv.Delete(ctx, nsPositionByHolder, store.AccountU64Key(string(holder), vaultID))
}

// nextVaultID claims the next id and advances the counter.
func nextVaultID(ctx context.Context, kv store.KV) (uint64, error) {
	raw, ok, err := kv.Get(ctx, nsCounter, keyNextVaultID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, engine.Newf(engine.CodeInvalidState, "vault component not initialized")
	}
	id := binary.BigEndian.Uint64(raw)
	if err := kv.Set(ctx, nsCounter, keyNextVaultID, store.U64Key(id+1)); err != nil {
		return 0, err
	}
	return id, nil
}

func initVaultCounter(ctx context.Context, kv store.KV) error {
	return kv.Set(ctx, nsCounter, keyNextVaultID, store.U64Key(1))
}
