package escrow

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/keelhq/keel/internal/codec"
	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/types"
)

// ReputationResp is the GetReputation response.
type ReputationResp struct {
	Address    types.AccountID `json:"address"`
	Reputation uint64          `json:"reputation"`
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
	case q.GetCase != nil:
		c, err := loadCase(ctx.Context, ctx.KV, q.GetCase.ID)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(c)
	case q.ListCases != nil:
		return queryListCases(ctx, q.ListCases)
	case q.ListByParty != nil:
		return queryListByParty(ctx, q.ListByParty)
	case q.GetReputation != nil:
		return queryGetReputation(ctx, q.GetReputation.Address)
	default:
		return nil, engine.Newf(engine.CodeInvalidInput, "unknown escrow query")
	}
}

func queryListCases(ctx engine.QueryCtx, q *ListCasesQuery) ([]byte, error) {
	var after []byte
	if q.StartAfter != nil {
		after = store.U64Key(*q.StartAfter)
	}
	entries, err := ctx.KV.Ascend(ctx.Context, nsCase, after, types.ClampLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	cases := make([]*Case, 0, len(entries))
	for _, e := range entries {
		var c Case
		if err := codec.Unmarshal(e.Value, &c); err != nil {
			return nil, fmt.Errorf("decode case: %w", err)
		}
		cases = append(cases, &c)
	}
	return codec.Marshal(cases)
}

func queryListByParty(ctx engine.QueryCtx, q *ListByPartyQuery) ([]byte, error) {
	if err := types.ValidateAccount(string(q.Party)); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "party: %v", err)
	}
	var after []byte
	if q.StartAfter != nil {
		after = store.AccountU64Key(string(q.Party), *q.StartAfter)
	}
	entries, err := ctx.KV.AscendPrefix(ctx.Context, nsCaseByParty,
		store.AccountPrefix(string(q.Party)), after, types.ClampLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	cases := make([]*Case, 0, len(entries))
	for _, e := range entries {
		_, id, err := store.ParseAccountU64Key(e.Key)
		if err != nil {
			return nil, fmt.Errorf("party index: %w", err)
		}
		c, err := loadCase(ctx.Context, ctx.KV, id)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return codec.Marshal(cases)
}

func queryGetReputation(ctx engine.QueryCtx, address types.AccountID) ([]byte, error) {
	if err := types.ValidateAccount(string(address)); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "address: %v", err)
	}
	var rep uint64
	raw, ok, err := ctx.KV.Get(ctx.Context, nsReputation, []byte(address))
	if err != nil {
		return nil, err
	}
	if ok {
		if len(raw) != 8 {
			return nil, fmt.Errorf("reputation for %s: malformed record", address)
		}
		rep = binary.BigEndian.Uint64(raw)
	}
	return codec.Marshal(ReputationResp{Address: address, Reputation: rep})
}
