package escrow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/types"
)

// ComponentName is the engine registration name, keyspace, event namespace
// and custody account of the escrow component.
const ComponentName = "escrow"

// Event types emitted by the component.
const (
	EventOpenCase = "escrow.open_case"
	EventApprove  = "escrow.approve"
	EventDispute  = "escrow.dispute"
	EventResolve  = "escrow.resolve"
	EventRelease  = "escrow.release"
	EventRefund   = "escrow.refund"
)

const defaultMinApprovalThreshold = 2

// App implements the escrow case engine.
type App struct{}

var _ engine.App = App{}

// New returns the escrow app.
func New() App { return App{} }

func (App) Name() string { return ComponentName }

// Instantiate writes the configuration and seeds the case counter at 1.
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

	threshold := uint32(defaultMinApprovalThreshold)
	if init.MinApprovalThreshold != nil {
		threshold = *init.MinApprovalThreshold
	}

	cfg := Config{
		Admin:                admin,
		DefaultDenom:         init.DefaultDenom,
		MinApprovalThreshold: threshold,
	}
	if err := saveConfig(ctx.Context, ctx.KV, cfg); err != nil {
		return nil, err
	}
	if err := initCaseCounter(ctx.Context, ctx.KV); err != nil {
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
	case cmd.OpenCase != nil:
		return a.openCase(ctx, cmd.OpenCase)
	case cmd.Approve != nil:
		return a.approve(ctx, cmd.Approve)
	case cmd.Dispute != nil:
		return a.dispute(ctx, cmd.Dispute)
	case cmd.Resolve != nil:
		return a.resolve(ctx, cmd.Resolve)
	case cmd.Release != nil:
		return a.release(ctx, cmd.Release)
	case cmd.Refund != nil:
		return a.refund(ctx, cmd.Refund)
	default:
		return nil, engine.Newf(engine.CodeInvalidInput, "unknown escrow command")
	}
}

func (App) openCase(ctx engine.Ctx, msg *OpenCaseMsg) (*engine.Result, error) {
	cfg, err := loadConfig(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}

	if err := types.MatchDenom(msg.Amount, cfg.DefaultDenom); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "%v", err)
	}
	if err := types.NonZero(msg.Amount.Amount); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "%v", err)
	}
	if len(msg.Parties) < 2 {
		return nil, engine.Newf(engine.CodeInvalidInput, "a case needs at least two parties, got %d", len(msg.Parties))
	}
	for _, p := range msg.Parties {
		if err := types.ValidateAccount(string(p)); err != nil {
			return nil, engine.Newf(engine.CodeInvalidInput, "parties: %v", err)
		}
	}
	if err := types.Distinct(msg.Parties); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "parties: %v", err)
	}
	if msg.ExpiryTS != nil && *msg.ExpiryTS <= ctx.Env.BlockTime {
		return nil, engine.Newf(engine.CodeExpired, "expiry %d is not in the future", *msg.ExpiryTS)
	}
	if err := msg.Model.Validate(); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "model: %v", err)
	}
	if err := types.AttachedEquals(ctx.Info.Funds, msg.Amount); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "%v", err)
	}

	id, err := nextCaseID(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}
	c := &Case{
		ID:        id,
		Parties:   msg.Parties,
		Amount:    msg.Amount,
		Model:     msg.Model,
		ExpiryTS:  msg.ExpiryTS,
		Remark:    msg.Remark,
		CreatedAt: ctx.Env.BlockTime,
		Status:    StatusOpen,
		Approvals: []types.AccountID{},
	}
	if err := saveCase(ctx.Context, ctx.KV, c); err != nil {
		return nil, err
	}
	if err := indexParties(ctx.Context, ctx.KV, c); err != nil {
		return nil, err
	}

	ev := types.NewEvent(EventOpenCase,
		"case_id", formatID(id),
		"parties", joinAccounts(c.Parties),
		"amount", c.Amount.String(),
		"model", c.Model.Describe(),
	)
	return &engine.Result{Action: "open_case", Events: []types.Event{ev}}, nil
}

func (App) approve(ctx engine.Ctx, msg *ApproveMsg) (*engine.Result, error) {
	c, err := loadCase(ctx.Context, ctx.KV, msg.CaseID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusOpen {
		return nil, engine.Newf(engine.CodeInvalidState, "case %d is %s, approvals need an open case", c.ID, c.Status)
	}
	if !c.HasParty(ctx.Info.Caller) {
		return nil, engine.Newf(engine.CodeInvalidInput, "%s is not a party to case %d", ctx.Info.Caller, c.ID)
	}
	if c.HasApproval(ctx.Info.Caller) {
		// Idempotent: re-approving is accepted without effect.
		return &engine.Result{Action: "already_approved"}, nil
	}

	c.Approvals = append(c.Approvals, ctx.Info.Caller)
	if uint32(len(c.Approvals)) >= c.Model.RequiredApprovals() {
		c.Status = StatusApproved
	}
	if err := saveCase(ctx.Context, ctx.KV, c); err != nil {
		return nil, err
	}

	ev := types.NewEvent(EventApprove,
		"case_id", formatID(c.ID),
		"approver", string(ctx.Info.Caller),
		"approvals", fmt.Sprintf("%d", len(c.Approvals)),
		"status", string(c.Status),
	)
	return &engine.Result{Action: "approve", Events: []types.Event{ev}}, nil
}

func (App) dispute(ctx engine.Ctx, msg *DisputeMsg) (*engine.Result, error) {
	c, err := loadCase(ctx.Context, ctx.KV, msg.CaseID)
	if err != nil {
		return nil, err
	}
	if !c.HasParty(ctx.Info.Caller) {
		return nil, engine.Newf(engine.CodeInvalidInput, "%s is not a party to case %d", ctx.Info.Caller, c.ID)
	}
	if c.Status != StatusOpen && c.Status != StatusApproved {
		return nil, engine.Newf(engine.CodeInvalidState, "case %d is %s, disputes need an open or approved case", c.ID, c.Status)
	}

	c.Status = StatusDisputed
	c.DisputeReason = msg.Reason
	if err := saveCase(ctx.Context, ctx.KV, c); err != nil {
		return nil, err
	}

	ev := types.NewEvent(EventDispute,
		"case_id", formatID(c.ID),
		"disputant", string(ctx.Info.Caller),
		"reason", msg.Reason,
	)
	return &engine.Result{Action: "dispute", Events: []types.Event{ev}}, nil
}

func (App) resolve(ctx engine.Ctx, msg *ResolveMsg) (*engine.Result, error) {
	c, err := loadCase(ctx.Context, ctx.KV, msg.CaseID)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}
	if ctx.Info.Caller != cfg.Admin && !c.HasParty(ctx.Info.Caller) {
		return nil, engine.Newf(engine.CodeUnauthorized, "%s is neither admin nor a party to case %d", ctx.Info.Caller, c.ID)
	}
	if c.Status != StatusDisputed {
		return nil, engine.Newf(engine.CodeInvalidState, "case %d is %s, not in dispute", c.ID, c.Status)
	}
	if err := msg.Decision.Validate(); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "decision: %v", err)
	}

	decision := msg.Decision
	c.Status = StatusResolved
	c.Resolution = &decision
	if err := saveCase(ctx.Context, ctx.KV, c); err != nil {
		return nil, err
	}

	ev := types.NewEvent(EventResolve,
		"case_id", formatID(c.ID),
		"resolver", string(ctx.Info.Caller),
		"decision", decision.Describe(),
	)
	return &engine.Result{Action: "resolve", Events: []types.Event{ev}}, nil
}

func (App) release(ctx engine.Ctx, msg *ReleaseMsg) (*engine.Result, error) {
	c, err := loadCase(ctx.Context, ctx.KV, msg.CaseID)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}
	if ctx.Info.Caller != cfg.Admin {
		return nil, engine.Newf(engine.CodeUnauthorized, "only admin may release case funds")
	}
	if c.Status != StatusResolved {
		return nil, engine.Newf(engine.CodeInvalidState, "case %d is %s, releases need a resolved case", c.ID, c.Status)
	}
	if err := types.ValidateAccount(string(msg.To)); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "recipient: %v", err)
	}
	share := types.BasisPoints
	if msg.ShareBps != nil {
		share = *msg.ShareBps
	}
	if err := types.ValidateBps(share, types.BasisPoints); err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "%v", err)
	}

	payout, err := c.Amount.Amount.MulDiv(types.NewUint(uint64(share)), types.NewUint(uint64(types.BasisPoints)))
	if err != nil {
		return nil, engine.Newf(engine.CodeInvalidInput, "payout: %v", err)
	}
	coin := types.NewCoin(c.Amount.Denom, payout)

	ev := types.NewEvent(EventRelease,
		"case_id", formatID(c.ID),
		"to", string(msg.To),
		"amount", coin.String(),
	)
	return &engine.Result{
		Action: "release",
		Events: []types.Event{ev},
		Transfers: []types.Transfer{
			{Recipient: msg.To, Amount: coin},
		},
	}, nil
}

func (App) refund(ctx engine.Ctx, msg *RefundMsg) (*engine.Result, error) {
	c, err := loadCase(ctx.Context, ctx.KV, msg.CaseID)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ctx.Context, ctx.KV)
	if err != nil {
		return nil, err
	}
	if ctx.Info.Caller != cfg.Admin {
		return nil, engine.Newf(engine.CodeUnauthorized, "only admin may refund case funds")
	}
	if c.Status != StatusResolved {
		return nil, engine.Newf(engine.CodeInvalidState, "case %d is %s, refunds need a resolved case", c.ID, c.Status)
	}

	// Refunds always return everything to the first party.
	recipient := c.Parties[0]
	ev := types.NewEvent(EventRefund,
		"case_id", formatID(c.ID),
		"to", string(recipient),
		"amount", c.Amount.String(),
	)
	return &engine.Result{
		Action: "refund",
		Events: []types.Event{ev},
		Transfers: []types.Transfer{
			{Recipient: recipient, Amount: c.Amount},
		},
	}, nil
}

func formatID(id uint64) string {
	return fmt.Sprintf("%d", id)
}

func joinAccounts(accounts []types.AccountID) string {
	parts := make([]string, len(accounts))
	for i, a := range accounts {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}
