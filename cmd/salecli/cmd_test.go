package main

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ligun0805/tier-sale/internal/config"
	"github.com/ligun0805/tier-sale/internal/sale"
	"github.com/ligun0805/tier-sale/internal/tiers"
	"github.com/ligun0805/tier-sale/internal/wallets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestTiersCommand(t *testing.T) {
	out := execute(t, "tiers")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 13)
	assert.Contains(t, lines[1], "PublicTier1Arbitrum")
	assert.Contains(t, lines[1], "275")
	assert.Contains(t, lines[1], "247.5")
	assert.Contains(t, lines[12], "PublicTier12Arbitrum")
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, Version+"\n", execute(t, "version"))
}

func TestPrintConfigHidesKeys(t *testing.T) {
	s, err := config.Load("", nil)
	require.NoError(t, err)
	s.RPCURLs = []string{"https://arb-mainnet.g.alchemy.com/v2/verysecretapikey"}

	var out bytes.Buffer
	printConfig(&out, s)
	assert.Contains(t, out.String(), "CHAIN_ID")
	assert.Contains(t, out.String(), "42161")
	assert.NotContains(t, out.String(), "verysecretapikey")
}

func participant(line int, addr string) *wallets.Participant {
	tier, _ := tiers.Default().Get(1)
	return &wallets.Participant{Line: line, Address: common.HexToAddress(addr), MinTier: 1, MaxTier: 1, Tiers: []tiers.Tier{tier}, Amount: 2}
}

func TestPrintSummary(t *testing.T) {
	tier, _ := tiers.Default().Get(1)
	s := sale.Summary{Reports: []sale.Report{
		{Participant: participant(1, "0x01"), Result: sale.Result{Outcome: sale.OutcomePurchased, Tier: tier, TxHash: common.HexToHash("0xabc")}},
		{Participant: participant(2, "0x02"), Result: sale.Result{Outcome: sale.OutcomeUnderfunded, Shortfall: big.NewInt(1_500_000)}},
		{Participant: participant(3, "0x03"), Err: errors.New("rpc down")},
	}}

	var out bytes.Buffer
	printSummary(&out, s)
	text := out.String()
	assert.Contains(t, text, "PublicTier1Arbitrum x2")
	assert.Contains(t, text, "missing 1.5 USDC")
	assert.Contains(t, text, "rpc down")
	assert.Contains(t, text, "purchased 1 / underfunded 1 / failed 1")
}

func TestPrintInspections(t *testing.T) {
	ps := []*wallets.Participant{participant(1, "0x01"), participant(2, "0x02")}
	results := []*sale.Inspection{{
		Participant: ps[0],
		Cost:        big.NewInt(495_000_000),
		USDC:        big.NewInt(500_000_000),
		Allowance:   big.NewInt(0),
		ETH:         big.NewInt(1),
		GasBudget:   big.NewInt(2),
	}, nil}

	var out bytes.Buffer
	printInspections(&out, ps, results)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "495")
	assert.Contains(t, lines[1], "funds:ok gas:LOW approved:false")
	assert.Contains(t, lines[2], "unavailable")
}
