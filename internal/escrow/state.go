package escrow

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/keelhq/keel/internal/codec"
	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/types"
)

// Keyspace namespaces. The case map is keyed by big-endian id so range
// scans walk cases in creation order; the party index keys are
// (party, 0x00, id) so one prefix scan lists a party's cases.
const (
	nsConfig      = "config"
	nsCounter     = "counter"
	nsCase        = "case"
	nsCaseByParty = "case_by_party"
	nsReputation  = "reputation"
)

var (
	keyConfig     = []byte("config")
	keyNextCaseID = []byte("next_case_id")
)

// Config is the component configuration, written once at instantiation.
type Config struct {
	Admin                types.AccountID `json:"admin"`
	DefaultDenom         string          `json:"default_denom"`
	MinApprovalThreshold uint32          `json:"min_approval_threshold"`
}

// Status is the case lifecycle state. It only ever advances:
// open moves to approved or disputed, approved to disputed, disputed to
// resolved. Resolved is terminal and cases are never deleted.
type Status string

const (
	StatusOpen     Status = "open"
	StatusApproved Status = "approved"
	StatusDisputed Status = "disputed"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
)

// Case is one escrow case. Parties and approvals keep insertion order;
// approvals is always a duplicate-free subset of parties.
type Case struct {
	ID            uint64            `json:"id"`
	Parties       []types.AccountID `json:"parties"`
	Amount        types.Coin        `json:"amount"`
	Model         Model             `json:"model"`
	ExpiryTS      *int64            `json:"expiry_ts,omitempty"`
	Remark        string            `json:"remark,omitempty"`
	CreatedAt     int64             `json:"created_at"`
	Status        Status            `json:"status"`
	Approvals     []types.AccountID `json:"approvals"`
	DisputeReason string            `json:"dispute_reason,omitempty"`
	Resolution    *Resolution       `json:"resolution,omitempty"`
}

// HasParty reports whether account is one of the case parties.
func (c *Case) HasParty(account types.AccountID) bool {
	for _, p := range c.Parties {
		if p == account {
			return true
		}
	}
	return false
}

// HasApproval reports whether account has already approved.
func (c *Case) HasApproval(account types.AccountID) bool {
	for _, a := range c.Approvals {
		if a == account {
			return true
		}
	}
	return false
}

func loadConfig(ctx context.Context, kv store.KV) (Config, error) {
	raw, ok, err := kv.Get(ctx, nsConfig, keyConfig)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, engine.Newf(engine.CodeInvalidState, "escrow component not initialized")
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

func loadCase(ctx context.Context, kv store.KV, id uint64) (*Case, error) {
	raw, ok, err := kv.Get(ctx, nsCase, store.U64Key(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.Newf(engine.CodeNotFound, "case %d not found", id)
	}
	var c Case
	if err := codec.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode case %d: %w", id, err)
	}
	return &c, nil
}

func saveCase(ctx context.Context, kv store.KV, c *Case) error {
	raw, err := codec.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode case %d: %w", c.ID, err)
	}
	return kv.Set(ctx, nsCase, store.U64Key(c.ID), raw)
}

// nextCaseID claims the next id and advances the counter.
func nextCaseID(ctx context.Context, kv store.KV) (uint64, error) {
	raw, ok, err := kv.Get(ctx, nsCounter, keyNextCaseID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, engine.Newf(engine.CodeInvalidState, "escrow component not initialized")
	}
	id := binary.BigEndian.Uint64(raw)
	if err := kv.Set(ctx, nsCounter, keyNextCaseID, store.U64Key(id+1)); err != nil {
		return 0, err
	}
	return id, nil
}

func initCaseCounter(ctx context.Context, kv store.KV) error {
	return kv.Set(ctx, nsCounter, keyNextCaseID, store.U64Key(1))
}

// indexParties writes one (party, id) index row per party so ListByParty
// is a single prefix scan.
func indexParties(ctx context.Context, kv store.KV, c *Case) error {
	for _, p := range c.Parties {
		key := store.AccountU64Key(string(p), c.ID)
		if err := kv.Set(ctx, nsCaseByParty, key, []byte{1}); err != nil {
			return err
		}
	}
	return nil
}
