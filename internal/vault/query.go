package vault

import (
	"encoding/json"
	"fmt"

	"github.com/keelhq/keel/internal/codec"
	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/types"
)

// PositionResp is the UserPosition response: stored shares plus their
// implied value at the vault's current share price.
type PositionResp struct {
	VaultID     uint64          `json:"vault_id"`
	Address     types.AccountID `json:"address"`
	Shares      types.Uint      `json:"shares"`
	Value       types.Uint      `json:"value"`
	DepositedAt int64           `json:"deposited_at"`
}

// Query answers read-only queries. Responses are canonical JSON, so the
// same query against the same state is byte-identical.
func (App) Query(ctx engine.QueryCtx, msg []byte) ([]byte, error) {
	var q QueryMsg
	if err := json.Unmarshal(msg, &q); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "decode query: %v", err)
	}
	switch {
	case q.Config != nil:
		cfg, err := loadConfig(ctx.Context, ctx.KV)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(cfg)
	case q.GetVault != nil:
		v, err := loadVault(ctx.Context, ctx.KV, q.GetVault.ID)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(v)
	case q.UserPosition != nil:
		return queryUserPosition(ctx, q.UserPosition)
	case q.ListVaults != nil:
		return queryListVaults(ctx, q.ListVaults)
	case q.ListPositionsByHolder != nil:
		return queryListPositionsByHolder(ctx, q.ListPositionsByHolder)
	default:
		return nil, engine.Newf(engine.CodeInvalidInput, "unknown vault query")
	}
}

func queryUserPosition(ctx engine.QueryCtx, q *UserPositionQuery) ([]byte, error) {
	if err := types.ValidateAccount(string(q.Address)); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "address: %v", err)
	}
	v, err := loadVault(ctx.Context, ctx.KV, q.VaultID)
	if err != nil {
		return nil, err
	}
	pos, err := loadPosition(ctx.Context, ctx.KV, q.VaultID, q.Address)
	if err != nil {
		return nil, err
	}
	resp := PositionResp{
		VaultID: q.VaultID,
		Address: q.Address,
		Shares:  types.ZeroUint(),
		Value:   types.ZeroUint(),
	}
	if pos != nil {
		resp.Shares = pos.Shares
		resp.DepositedAt = pos.DepositedAt
		if !v.TotalShares.IsZero() {
			resp.Value, err = pos.Shares.MulDiv(v.TVL, v.TotalShares)
			if err != nil {
				return nil, fmt.Errorf("position value: %w", err)
			}
		}
	}
	return codec.Marshal(resp)
}

func queryListVaults(ctx engine.QueryCtx, q *ListVaultsQuery) ([]byte, error) {
	var after []byte
	if q.StartAfter != nil {
		after = store.U64Key(*q.StartAfter)
	}
	entries, err := ctx.KV.Ascend(ctx.Context, nsVault, after, types.ClampLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	vaults := make([]*Vault, 0, len(entries))
	for _, e := range entries {
		var v Vault
		if err := codec.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("decode vault: %w", err)
		}
		vaults = append(vaults, &v)
	}
	return codec.Marshal(vaults)
}

func queryListPositionsByHolder(ctx engine.QueryCtx, q *ListPositionsByHolderQuery) ([]byte, error) {
	if err := types.ValidateAccount(string(q.Address)); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "address: %v", err)
	}
	var after []byte
	if q.StartAfter != nil {
		after = store.AccountU64Key(string(q.Address), *q.StartAfter)
	}
	entries, err := ctx.KV.AscendPrefix(ctx.Context, nsPositionByHolder,
		store.AccountPrefix(string(q.Address)), after, types.ClampLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	positions := make([]*Position, 0, len(entries))
	for _, e := range entries {
		_, vaultID, err := store.ParseAccountU64Key(e.Key)
		if err != nil {
			return nil, fmt.Errorf("holder index: %w", err)
		}
		pos, err := loadPosition(ctx.Context, ctx.KV, vaultID, q.Address)
		if err != nil {
			return nil, err
		}
		if pos == nil {
			return nil, fmt.Errorf("holder index points at missing position %d/%s", vaultID, q.Address)
		}
		positions = append(positions, pos)
	}
	return codec.Marshal(positions)
}
