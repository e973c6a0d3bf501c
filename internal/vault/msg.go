// Package vault is the share-based pooled-deposit accounting engine.
// Depositors receive shares priced by the vault's current value; a
// withdrawal burns shares for a proportional payout. Allocation legs are
// admin-managed bookkeeping over where pooled value is nominally placed.
package vault

import (
	"fmt"

	"github.com/keelhq/keel/internal/types"
)

// InitMsg configures the component. Admin defaults to the instantiating
// caller and the fee cap defaults to 500 bps when omitted.
type InitMsg struct {
	Admin        string  `json:"admin,omitempty"`
	DefaultDenom string  `json:"default_denom"`
	MaxFeeBps    *uint32 `json:"max_fee_bps,omitempty"`
}

// ExecuteMsg is the command vocabulary, one variant per invocation.
type ExecuteMsg struct {
	CreateVault *CreateVaultMsg `json:"create_vault,omitempty"`
	Deposit     *DepositMsg     `json:"deposit,omitempty"`
	Withdraw    *WithdrawMsg    `json:"withdraw,omitempty"`
	Harvest     *HarvestMsg     `json:"harvest,omitempty"`
	Rebalance   *RebalanceMsg   `json:"rebalance,omitempty"`
}

// CreateVaultMsg creates a vault. FeeBps defaults to 100 when omitted.
type CreateVaultMsg struct {
	Label    string   `json:"label"`
	Denom    string   `json:"denom"`
	Strategy Strategy `json:"strategy"`
	FeeBps   *uint32  `json:"fee_bps,omitempty"`
}

// DepositMsg adds amount to the pool. Attached funds must equal amount
// exactly.
type DepositMsg struct {
	VaultID uint64     `json:"vault_id"`
	Amount  types.Coin `json:"amount"`
}

// WithdrawMsg burns shares for a proportional payout to the caller.
// Shares is a decimal string, like every persisted magnitude.
type WithdrawMsg struct {
	VaultID uint64 `json:"vault_id"`
	Shares  string `json:"shares"`
}

// HarvestMsg accrues yield. Without protocol adapters the accrued amount
// is always zero; the operation exists so the event stream is complete.
type HarvestMsg struct {
	VaultID uint64 `json:"vault_id"`
}

// RebalanceMsg replaces the vault's allocation legs wholesale.
type RebalanceMsg struct {
	VaultID uint64         `json:"vault_id"`
	Plan    AllocationPlan `json:"plan"`
}

// Strategy is the vault strategy, a tagged union with exactly one variant
// set. The presets carry no parameters; Custom carries an explicit plan.
type Strategy struct {
	Conservative *struct{}       `json:"conservative,omitempty"`
	Balanced     *struct{}       `json:"balanced,omitempty"`
	Aggressive   *struct{}       `json:"aggressive,omitempty"`
	Custom       *CustomStrategy `json:"custom,omitempty"`
}

// CustomStrategy wraps an explicit allocation plan.
type CustomStrategy struct {
	Allocations AllocationPlan `json:"allocations"`
}

// Validate checks that exactly one variant is set. Presets are always
// valid; a custom plan must keep its weights within 10000 bps.
func (s Strategy) Validate() error {
	set := 0
	if s.Conservative != nil {
		set++
	}
	if s.Balanced != nil {
		set++
	}
	if s.Aggressive != nil {
		set++
	}
	if s.Custom != nil {
		set++
		if err := s.Custom.Allocations.Validate(); err != nil {
			return fmt.Errorf("custom strategy: %w", err)
		}
	}
	if set != 1 {
		return fmt.Errorf("strategy must have exactly one variant, got %d", set)
	}
	return nil
}

// Describe renders the strategy for event attributes.
func (s Strategy) Describe() string {
	switch {
	case s.Conservative != nil:
		return "Conservative"
	case s.Balanced != nil:
		return "Balanced"
	case s.Aggressive != nil:
		return "Aggressive"
	case s.Custom != nil:
		return "Custom"
	}
	return "Unknown"
}

// Protocol tags where an allocation leg nominally places value.
type Protocol string

const (
	ProtocolStaking       Protocol = "staking"
	ProtocolLending       Protocol = "lending"
	ProtocolLiquidityPool Protocol = "liquidity_pool"
	ProtocolPerpsHedge    Protocol = "perps_hedge"
	ProtocolCash          Protocol = "cash"
)

// Validate checks the protocol tag.
func (p Protocol) Validate() error {
	switch p {
	case ProtocolStaking, ProtocolLending, ProtocolLiquidityPool, ProtocolPerpsHedge, ProtocolCash:
		return nil
	}
	return fmt.Errorf("unknown protocol %q", p)
}

// AllocationPlan is an ordered list of allocation legs.
type AllocationPlan struct {
	Legs []AllocationLeg `json:"legs"`
}

// AllocationLeg is one bookkeeping leg of a plan.
type AllocationLeg struct {
	Protocol      Protocol   `json:"protocol"`
	WeightBps     uint32     `json:"weight_bps"`
	CurrentAmount types.Uint `json:"current_amount"`
	TargetAmount  types.Uint `json:"target_amount"`
}

// Validate checks every protocol tag and that weights stay within
// 10000 bps in total.
func (p AllocationPlan) Validate() error {
	var total uint64
	for _, leg := range p.Legs {
		if err := leg.Protocol.Validate(); err != nil {
			return err
		}
		total += uint64(leg.WeightBps)
	}
	if total > uint64(types.BasisPoints) {
		return fmt.Errorf("allocation weights %d bps exceed 10000", total)
	}
	return nil
}

// QueryMsg is the read-only query vocabulary.
type QueryMsg struct {
	Config                *ConfigQuery                `json:"config,omitempty"`
	GetVault              *GetVaultQuery              `json:"get_vault,omitempty"`
	UserPosition          *UserPositionQuery          `json:"user_position,omitempty"`
	ListVaults            *ListVaultsQuery            `json:"list_vaults,omitempty"`
	ListPositionsByHolder *ListPositionsByHolderQuery `json:"list_positions_by_holder,omitempty"`
}

// ConfigQuery returns the component configuration.
type ConfigQuery struct{}

// GetVaultQuery returns one vault by id.
type GetVaultQuery struct {
	ID uint64 `json:"id"`
}

// UserPositionQuery returns a holder's shares and their implied value in
// one vault. Holders without a position get zero shares.
type UserPositionQuery struct {
	VaultID uint64          `json:"vault_id"`
	Address types.AccountID `json:"address"`
}

// ListVaultsQuery pages all vaults in id order. StartAfter is exclusive.
type ListVaultsQuery struct {
	StartAfter *uint64 `json:"start_after,omitempty"`
	Limit      uint32  `json:"limit,omitempty"`
}

// ListPositionsByHolderQuery pages one holder's positions across vaults.
type ListPositionsByHolderQuery struct {
	Address    types.AccountID `json:"address"`
	StartAfter *uint64         `json:"start_after,omitempty"`
	Limit      uint32          `json:"limit,omitempty"`
}
