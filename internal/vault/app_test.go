package vault_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/testutil"
	"github.com/keelhq/keel/internal/types"
	"github.com/keelhq/keel/internal/vault"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	e := engine.New(st,
		engine.WithTokenGenerator(&engine.SequenceGenerator{}),
		engine.WithClock(testutil.NewClock().Now),
	)
	require.NoError(t, e.Register(vault.New()))
	return e
}

func initVault(t *testing.T, e *engine.Engine) {
	t.Helper()
	_, err := e.Instantiate(context.Background(), "vault", "admin-1",
		[]byte(`{"default_denom":"usei"}`))
	require.NoError(t, err)
}

func createVault(t *testing.T, e *engine.Engine) uint64 {
	t.Helper()
	msg := `{"create_vault":{"label":"core","denom":"usei","strategy":{"balanced":{}}}}`
	rcpt, err := exec(e, "admin-1", nil, msg)
	require.NoError(t, err)
	require.Equal(t, "create_vault", rcpt.Action)
	return 1
}

func exec(e *engine.Engine, caller string, funds []types.Coin, msg string) (*engine.Receipt, error) {
	return e.Execute(context.Background(), "vault", types.AccountID(caller), funds, []byte(msg))
}

func deposit(t *testing.T, e *engine.Engine, caller string, id uint64, amount string) {
	t.Helper()
	msg := fmt.Sprintf(`{"deposit":{"vault_id":%d,"amount":{"denom":"usei","amount":"%s"}}}`, id, amount)
	_, err := exec(e, caller, testutil.Coins(amount+"usei"), msg)
	require.NoError(t, err)
}

func getVault(t *testing.T, e *engine.Engine, id uint64) vault.Vault {
	t.Helper()
	out, err := e.Query(context.Background(), "vault",
		[]byte(fmt.Sprintf(`{"get_vault":{"id":%d}}`, id)))
	require.NoError(t, err)
	var v vault.Vault
	require.NoError(t, json.Unmarshal(out, &v))
	return v
}

func getPosition(t *testing.T, e *engine.Engine, id uint64, addr string) vault.PositionResp {
	t.Helper()
	out, err := e.Query(context.Background(), "vault",
		[]byte(fmt.Sprintf(`{"user_position":{"vault_id":%d,"address":"%s"}}`, id, addr)))
	require.NoError(t, err)
	var p vault.PositionResp
	require.NoError(t, json.Unmarshal(out, &p))
	return p
}

func TestInstantiateDefaults(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)

	out, err := e.Query(context.Background(), "vault", []byte(`{"config":{}}`))
	require.NoError(t, err)
	require.JSONEq(t,
		`{"admin":"admin-1","default_denom":"usei","max_fee_bps":500}`,
		string(out))
}

func TestInstantiateTwiceRejected(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)

	_, err := e.Instantiate(context.Background(), "vault", "admin-2",
		[]byte(`{"default_denom":"usei"}`))
	require.True(t, engine.IsCode(err, engine.CodeInvalidState))
}

func TestCreateVaultValidation(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)

	_, err := exec(e, "mallory", nil, `{"create_vault":{"label":"x","denom":"usei","strategy":{"balanced":{}}}}`)
	require.True(t, engine.IsCode(err, engine.CodeUnauthorized))

	_, err = exec(e, "admin-1", nil, `{"create_vault":{"label":"x","denom":"usei","strategy":{"balanced":{}},"fee_bps":501}}`)
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	_, err = exec(e, "admin-1", nil, `{"create_vault":{"label":"","denom":"usei","strategy":{"balanced":{}}}}`)
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	_, err = exec(e, "admin-1", nil, `{"create_vault":{"label":"x","denom":"usei","strategy":{}}}`)
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	// Custom plan weights over 100%.
	over := `{"create_vault":{"label":"x","denom":"usei","strategy":{"custom":{"allocations":{"legs":[{"protocol":"staking","weight_bps":6000,"current_amount":"0","target_amount":"0"},{"protocol":"cash","weight_bps":5000,"current_amount":"0","target_amount":"0"}]}}}}}`
	_, err = exec(e, "admin-1", nil, over)
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	rcpt, err := exec(e, "admin-1", nil, `{"create_vault":{"label":"core","denom":"usei","strategy":{"conservative":{}},"fee_bps":50}}`)
	require.NoError(t, err)
	require.Equal(t, "create_vault", rcpt.Action)

	v := getVault(t, e, 1)
	require.Equal(t, uint32(50), v.FeeBps)
	require.True(t, v.TVL.IsZero())
	require.True(t, v.TotalShares.IsZero())
	require.Empty(t, v.Allocations)
}

func TestCreateVaultDefaultFee(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	createVault(t, e)
	require.Equal(t, uint32(100), getVault(t, e, 1).FeeBps)
}

func TestDepositBootstrapMintsOneToOne(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)
	deposit(t, e, "alice", id, "1000")

	v := getVault(t, e, id)
	require.Equal(t, "1000", v.TVL.String())
	require.Equal(t, "1000", v.TotalShares.String())

	p := getPosition(t, e, id, "alice")
	require.Equal(t, "1000", p.Shares.String())
	require.Equal(t, "1000", p.Value.String())
}

func TestDepositValidation(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)

	_, err := exec(e, "alice", testutil.Coins("100uatom"),
		fmt.Sprintf(`{"deposit":{"vault_id":%d,"amount":{"denom":"uatom","amount":"100"}}}`, id))
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	_, err = exec(e, "alice", nil,
		fmt.Sprintf(`{"deposit":{"vault_id":%d,"amount":{"denom":"usei","amount":"0"}}}`, id))
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	// Attached funds must match the declared amount.
	_, err = exec(e, "alice", testutil.Coins("50usei"),
		fmt.Sprintf(`{"deposit":{"vault_id":%d,"amount":{"denom":"usei","amount":"100"}}}`, id))
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	_, err = exec(e, "alice", testutil.Coins("100usei"),
		`{"deposit":{"vault_id":42,"amount":{"denom":"usei","amount":"100"}}}`)
	require.True(t, engine.IsCode(err, engine.CodeNotFound))
}

func TestDepositShareMathFloors(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)

	deposit(t, e, "alice", id, "1000")
	// 333 * 1000 / 1000 = 333 shares for bob.
	deposit(t, e, "bob", id, "333")

	v := getVault(t, e, id)
	require.Equal(t, "1333", v.TVL.String())
	require.Equal(t, "1333", v.TotalShares.String())

	// Conservation: position shares sum to total shares.
	a := getPosition(t, e, id, "alice")
	b := getPosition(t, e, id, "bob")
	require.Equal(t, v.TotalShares.String(), a.Shares.Add(b.Shares).String())
}

func TestRepeatedDepositsAccumulate(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)

	deposit(t, e, "alice", id, "400")
	deposit(t, e, "alice", id, "600")

	p := getPosition(t, e, id, "alice")
	require.Equal(t, "1000", p.Shares.String())
}

// requireSharesReconcile checks that the holders' recorded positions sum
// to the vault's total share supply.
func requireSharesReconcile(t *testing.T, e *engine.Engine, id uint64, holders ...string) {
	t.Helper()
	sum := types.ZeroUint()
	for _, h := range holders {
		sum = sum.Add(getPosition(t, e, id, h).Shares)
	}
	v := getVault(t, e, id)
	require.True(t, sum.Equal(v.TotalShares),
		"position shares sum to %s, vault records %s", sum, v.TotalShares)
}

func TestShareSumMatchesTotalAcrossHolders(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)
	holders := []string{"alice", "bob", "carol"}

	deposit(t, e, "alice", id, "1000")
	requireSharesReconcile(t, e, id, holders...)

	deposit(t, e, "bob", id, "333")
	requireSharesReconcile(t, e, id, holders...)

	deposit(t, e, "carol", id, "7")
	requireSharesReconcile(t, e, id, holders...)

	_, err := exec(e, "alice", nil, fmt.Sprintf(`{"withdraw":{"vault_id":%d,"shares":"999"}}`, id))
	require.NoError(t, err)
	requireSharesReconcile(t, e, id, holders...)

	_, err = exec(e, "bob", nil, fmt.Sprintf(`{"withdraw":{"vault_id":%d,"shares":"333"}}`, id))
	require.NoError(t, err)
	requireSharesReconcile(t, e, id, holders...)

	v := getVault(t, e, id)
	require.Equal(t, "8", v.TotalShares.String())
}

func TestWithdrawRoundTrip(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)
	deposit(t, e, "alice", id, "1000")

	rcpt, err := exec(e, "alice", nil, fmt.Sprintf(`{"withdraw":{"vault_id":%d,"shares":"500"}}`, id))
	require.NoError(t, err)
	require.Len(t, rcpt.Transfers, 1)
	require.Equal(t, "500usei", rcpt.Transfers[0].Amount.String())

	v := getVault(t, e, id)
	require.Equal(t, "500", v.TVL.String())
	require.Equal(t, "500", v.TotalShares.String())

	rcpt, err = exec(e, "alice", nil, fmt.Sprintf(`{"withdraw":{"vault_id":%d,"shares":"500"}}`, id))
	require.NoError(t, err)
	require.Equal(t, "500usei", rcpt.Transfers[0].Amount.String())

	// Pool is fully drained and the position is gone.
	v = getVault(t, e, id)
	require.True(t, v.TVL.IsZero())
	require.True(t, v.TotalShares.IsZero())

	p := getPosition(t, e, id, "alice")
	require.True(t, p.Shares.IsZero())
	require.True(t, p.Value.IsZero())

	bal, err := e.Store().Balance(context.Background(), "alice", "usei")
	require.NoError(t, err)
	require.Equal(t, "1000", bal.String())

	custody, err := e.Store().Balance(context.Background(), "vault", "usei")
	require.NoError(t, err)
	require.True(t, custody.IsZero())
}

func TestWithdrawValidation(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)
	deposit(t, e, "alice", id, "100")

	_, err := exec(e, "alice", nil, fmt.Sprintf(`{"withdraw":{"vault_id":%d,"shares":"abc"}}`, id))
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	_, err = exec(e, "alice", nil, fmt.Sprintf(`{"withdraw":{"vault_id":%d,"shares":"0"}}`, id))
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))

	_, err = exec(e, "alice", nil, fmt.Sprintf(`{"withdraw":{"vault_id":%d,"shares":"101"}}`, id))
	require.True(t, engine.IsCode(err, engine.CodeInsufficient))

	// Holders without a position cannot withdraw at all.
	_, err = exec(e, "bob", nil, fmt.Sprintf(`{"withdraw":{"vault_id":%d,"shares":"1"}}`, id))
	require.True(t, engine.IsCode(err, engine.CodeInsufficient))
}

func TestHarvestEmitsZeroYield(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)

	_, err := exec(e, "alice", nil, fmt.Sprintf(`{"harvest":{"vault_id":%d}}`, id))
	require.True(t, engine.IsCode(err, engine.CodeUnauthorized))

	rcpt, err := exec(e, "admin-1", nil, fmt.Sprintf(`{"harvest":{"vault_id":%d}}`, id))
	require.NoError(t, err)
	require.Equal(t, "harvest", rcpt.Action)
	require.Len(t, rcpt.Events, 1)
	require.Equal(t, vault.EventHarvest, rcpt.Events[0].Type)
}

func TestRebalanceReplacesAllocations(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)

	plan := fmt.Sprintf(`{"rebalance":{"vault_id":%d,"plan":{"legs":[{"protocol":"staking","weight_bps":7000,"current_amount":"0","target_amount":"700"},{"protocol":"cash","weight_bps":3000,"current_amount":"0","target_amount":"300"}]}}}`, id)
	_, err := exec(e, "alice", nil, plan)
	require.True(t, engine.IsCode(err, engine.CodeUnauthorized))

	_, err = exec(e, "admin-1", nil, plan)
	require.NoError(t, err)

	v := getVault(t, e, id)
	require.Len(t, v.Allocations, 2)
	require.Equal(t, vault.ProtocolStaking, v.Allocations[0].Protocol)
	require.Equal(t, uint32(7000), v.Allocations[0].WeightBps)

	// A later plan replaces the legs wholesale.
	smaller := fmt.Sprintf(`{"rebalance":{"vault_id":%d,"plan":{"legs":[{"protocol":"lending","weight_bps":10000,"current_amount":"0","target_amount":"1000"}]}}}`, id)
	_, err = exec(e, "admin-1", nil, smaller)
	require.NoError(t, err)
	v = getVault(t, e, id)
	require.Len(t, v.Allocations, 1)
	require.Equal(t, vault.ProtocolLending, v.Allocations[0].Protocol)

	// Unknown protocol and overweight plans are rejected.
	bad := fmt.Sprintf(`{"rebalance":{"vault_id":%d,"plan":{"legs":[{"protocol":"farming","weight_bps":100,"current_amount":"0","target_amount":"0"}]}}}`, id)
	_, err = exec(e, "admin-1", nil, bad)
	require.True(t, engine.IsCode(err, engine.CodeInvalidInput))
}

func TestListVaultsPagination(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	for i := 0; i < 4; i++ {
		msg := fmt.Sprintf(`{"create_vault":{"label":"v%d","denom":"usei","strategy":{"balanced":{}}}}`, i)
		_, err := exec(e, "admin-1", nil, msg)
		require.NoError(t, err)
	}

	out, err := e.Query(context.Background(), "vault", []byte(`{"list_vaults":{"limit":2}}`))
	require.NoError(t, err)
	var page []vault.Vault
	require.NoError(t, json.Unmarshal(out, &page))
	require.Len(t, page, 2)
	require.Equal(t, uint64(1), page[0].ID)

	out, err = e.Query(context.Background(), "vault", []byte(`{"list_vaults":{"start_after":2}}`))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, &page))
	require.Len(t, page, 2)
	require.Equal(t, uint64(3), page[0].ID)
}

func TestListPositionsByHolder(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	createVault(t, e)
	_, err := exec(e, "admin-1", nil, `{"create_vault":{"label":"second","denom":"usei","strategy":{"aggressive":{}}}}`)
	require.NoError(t, err)

	deposit(t, e, "alice", 1, "100")
	deposit(t, e, "alice", 2, "200")
	deposit(t, e, "bob", 1, "50")

	out, err := e.Query(context.Background(), "vault",
		[]byte(`{"list_positions_by_holder":{"address":"alice"}}`))
	require.NoError(t, err)
	var positions []vault.Position
	require.NoError(t, json.Unmarshal(out, &positions))
	require.Len(t, positions, 2)
	require.Equal(t, uint64(1), positions[0].VaultID)
	require.Equal(t, uint64(2), positions[1].VaultID)

	// Withdrawing everything removes the vault from the holder's list.
	_, err = exec(e, "alice", nil, `{"withdraw":{"vault_id":1,"shares":"100"}}`)
	require.NoError(t, err)
	out, err = e.Query(context.Background(), "vault",
		[]byte(`{"list_positions_by_holder":{"address":"alice"}}`))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, &positions))
	require.Len(t, positions, 1)
	require.Equal(t, uint64(2), positions[0].VaultID)
}

func TestUserPositionImpliedValueFloors(t *testing.T) {
	e := newEngine(t)
	initVault(t, e)
	id := createVault(t, e)

	deposit(t, e, "alice", id, "1000")
	deposit(t, e, "bob", id, "333")

	// bob: 333 * 1333 / 1333 = 333.
	p := getPosition(t, e, id, "bob")
	require.Equal(t, "333", p.Value.String())
}
