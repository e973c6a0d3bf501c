package vault

import (
	"encoding/json"
	"fmt"

	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/types"
)

// ComponentName is the engine registration name, keyspace, event namespace
// and custody account of the vault component.
const ComponentName = "vault"

// Event types emitted by the component.
const (
	EventCreate    = "vault.create"
	EventDeposit   = "vault.deposit"
	EventWithdraw  = "vault.withdraw"
	EventHarvest   = "vault.harvest"
	EventRebalance = "vault.rebalance"
)

const (
	defaultMaxFeeBps = 500
	defaultFeeBps    = 100
)

// App implements the vault accounting engine.
type App struct{}

var _ engine.App = App{}

// New returns the vault app.
func New() App { return App{} }

func (App) Name() string { return ComponentName }

// Instantiate writes the configuration and seeds the vault counter at 1.
func (App) Instantiate(ctx engine.Ctx, msg []byte) (*engine.Result, error) {
	if _, ok, err := ctx.KV.Get(ctx.Context, nsConfig, keyConfig); err != nil {
		return nil, err
	} else if ok {
		return nil, engine.Newf(engine.CodeInvalidState, "component already instantiated")
	}

	var init InitMsg
	if err := json.Unmarshal(msg, &init); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "decode init: %v", err)
	}

	admin := types.AccountID(init.Admin)
	if init.Admin == "" {
		admin = ctx.Info.Caller
	}
	if err := types.ValidateAccount(string(admin)); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "admin: %v", err)
	}
	if err := types.ValidateDenom(init.DefaultDenom); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "default denom: %v", err)
	}

	maxFee := uint32(defaultMaxFeeBps)
	if init.MaxFeeBps != nil {
		maxFee = *init.MaxFeeBps
	}

	cfg := Config{
		Admin:        admin,
		DefaultDenom: init.DefaultDenom,
		MaxFeeBps:    maxFee,
	}
	if err := saveConfig(ctx.Context, ctx.KV, cfg); err != nil {
		return nil, err
	}
	if err := initVaultCounter(ctx.Context, ctx.KV); err != nil {
		return nil, err
	}
	return &engine.Result{Action: "instantiate"}, nil
}

// Execute dispatches one command. Exactly one variant must be set.
func (a App) Execute(ctx engine.Ctx, msg []byte) (*engine.Result, error) {
	var cmd ExecuteMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "decode command: %v", err)
	}
	switch {
	case cmd.CreateVault != nil:
		return a.createVault(ctx, cmd.CreateVault)
	case cmd.Deposit != nil:
		return a.deposit(ctx, cmd.Deposit)
	case cmd.Withdraw != nil:
		return a.withdraw(ctx, cmd.Withdraw)
	case cmd.Harvest != nil:
		return a.harvest(ctx, cmd.Harvest)
	case cmd.Rebalance != nil:
		return a.rebalance(ctx, cmd.Rebalance)
	default:
		return nil, engine.Newf(engine.CodeInvalidInput, "unknown vault command")
	}
}

func (App) createVault(ctx engine.Ctx, msg *CreateVaultMsg) (*engine.Result, error) {
	cfg, err := loadConfig(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}
	if ctx.Info.Caller != cfg.Admin {
		return nil, engine.Newf(engine.CodeUnauthorized, "only admin may create vaults")
	}

	fee := uint32(defaultFeeBps)
	if msg.FeeBps != nil {
		fee = *msg.FeeBps
	}
	if err := types.ValidateBps(fee, cfg.MaxFeeBps); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "fee: %v", err)
	}
	if msg.Label == "" {
		return nil, engine.Newf(engine.CodeInvalidInput, "label must not be empty")
	}
	if err := types.ValidateDenom(msg.Denom); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "denom: %v", err)
	}
	if err := msg.Strategy.Validate(); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "strategy: %v", err)
	}

	id, err := nextVaultID(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		ID:          id,
		Label:       msg.Label,
		Denom:       msg.Denom,
		Strategy:    msg.Strategy,
		FeeBps:      fee,
		TVL:         types.ZeroUint(),
		TotalShares: types.ZeroUint(),
		CreatedAt:   ctx.Env.BlockTime,
		Allocations: []AllocationLeg{},
	}
	if err := saveVault(ctx.Context, ctx.KV, v); err != nil {
		return nil, err
	}

	ev := types.NewEvent(EventCreate,
		"vault_id", formatID(id),
		"label", msg.Label,
		"denom", msg.Denom,
		"strategy", msg.Strategy.Describe(),
	)
	return &engine.Result{Action: "create_vault", Events: []types.Event{ev}}, nil
}

func (App) deposit(ctx engine.Ctx, msg *DepositMsg) (*engine.Result, error) {
	v, err := loadVault(ctx.Context, ctx.KV, msg.VaultID)
	if err != nil {
		return nil, err
	}
	if err := types.MatchDenom(msg.Amount, v.Denom); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "%v", err)
	}
	if err := types.NonZero(msg.Amount.Amount); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "%v", err)
	}
	if err := types.AttachedEquals(ctx.Info.Funds, msg.Amount); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "%v", err)
	}

	// Share price: the first deposit mints 1:1; afterwards minted shares
	// are amount * total_shares / tvl, floored.
	minted := msg.Amount.Amount
	if !v.TotalShares.IsZero() {
		minted, err = msg.Amount.Amount.MulDiv(v.TotalShares, v.TVL)
		if err != nil {
			return nil, engine.Newf(engine.CodeInvalidInput, "mint: %v", err)
		}
	}

	v.TVL = v.TVL.Add(msg.Amount.Amount)
	v.TotalShares = v.TotalShares.Add(minted)
	if err := saveVault(ctx.Context, ctx.KV, v); err != nil {
		return nil, err
	}

	pos, err := loadPosition(ctx.Context, ctx.KV, v.ID, ctx.Info.Caller)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{
			VaultID: v.ID,
			Address: ctx.Info.Caller,
			Shares:  types.ZeroUint(),
		}
	}
	pos.Shares = pos.Shares.Add(minted)
	pos.DepositedAt = ctx.Env.BlockTime
	if err := savePosition(ctx.Context, ctx.KV, pos); err != nil {
		return nil, err
	}

	ev := types.NewEvent(EventDeposit,
		"vault_id", formatID(v.ID),
		"depositor", string(ctx.Info.Caller),
		"amount", msg.Amount.String(),
		"shares", minted.String(),
	)
	return &engine.Result{Action: "deposit", Events: []types.Event{ev}}, nil
}

func (App) withdraw(ctx engine.Ctx, msg *WithdrawMsg) (*engine.Result, error) {
	v, err := loadVault(ctx.Context, ctx.KV, msg.VaultID)
	if err != nil {
		return nil, err
	}
	shares, err := types.ParseUint(msg.Shares)
	if err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "shares: %v", err)
	}
	if err := types.NonZero(shares); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "shares: %v", err)
	}

	pos, err := loadPosition(ctx.Context, ctx.KV, v.ID, ctx.Info.Caller)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.Shares.LT(shares) {
		return nil, engine.Newf(engine.CodeInsufficient, "%s holds fewer than %s shares in vault %d",
			ctx.Info.Caller, shares, v.ID)
	}

	// Payout is priced before the burn, floored.
	payout, err := shares.MulDiv(v.TVL, v.TotalShares)
	if err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "payout: %v", err)
	}

	v.TVL, err = v.TVL.Sub(payout)
	if err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "tvl: %v", err)
	}
	v.TotalShares, err = v.TotalShares.Sub(shares)
	if err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "total shares: %v", err)
	}
	if err := saveVault(ctx.Context, ctx.KV, v); err != nil {
		return nil, err
	}

	remaining, err := pos.Shares.Sub(shares)
	if err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "position shares: %v", err)
	}
	if remaining.IsZero() {
		if err := deletePosition(ctx.Context, ctx.KV, v.ID, ctx.Info.Caller); err != nil {
			return nil, err
		}
	} else {
		pos.Shares = remaining
		if err := savePosition(ctx.Context, ctx.KV, pos); err != nil {
			return nil, err
		}
	}

	coin := types.NewCoin(v.Denom, payout)
	ev := types.NewEvent(EventWithdraw,
		"vault_id", formatID(v.ID),
		"withdrawer", string(ctx.Info.Caller),
		"shares", shares.String(),
		"amount", coin.String(),
	)
	return &engine.Result{
		Action: "withdraw",
		Events: []types.Event{ev},
		Transfers: []types.Transfer{
			{Recipient: ctx.Info.Caller, Amount: coin},
		},
	}, nil
}

func (App) harvest(ctx engine.Ctx, msg *HarvestMsg) (*engine.Result, error) {
	v, err := loadVault(ctx.Context, ctx.KV, msg.VaultID)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}
	if ctx.Info.Caller != cfg.Admin {
		return nil, engine.Newf(engine.CodeUnauthorized, "only admin may harvest")
	}

	// No protocol adapters are wired, so accrued yield is always zero.
	accrued := types.NewCoin(v.Denom, types.ZeroUint())
	ev := types.NewEvent(EventHarvest,
		"vault_id", formatID(v.ID),
		"yield", accrued.String(),
	)
	return &engine.Result{Action: "harvest", Events: []types.Event{ev}}, nil
}

func (App) rebalance(ctx engine.Ctx, msg *RebalanceMsg) (*engine.Result, error) {
	v, err := loadVault(ctx.Context, ctx.KV, msg.VaultID)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}
	if ctx.Info.Caller != cfg.Admin {
		return nil, engine.Newf(engine.CodeUnauthorized, "only admin may rebalance")
	}
	if err := msg.Plan.Validate(); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "plan: %v", err)
	}

	v.Allocations = msg.Plan.Legs
	if v.Allocations == nil {
		v.Allocations = []AllocationLeg{}
	}
	if err := saveVault(ctx.Context, ctx.KV, v); err != nil {
		return nil, err
	}

	ev := types.NewEvent(EventRebalance,
		"vault_id", formatID(v.ID),
		"legs", fmt.Sprintf("%d", len(v.Allocations)),
	)
	return &engine.Result{Action: "rebalance", Events: []types.Event{ev}}, nil
}

func formatID(id uint64) string {
	return fmt.Sprintf("%d", id)
}
