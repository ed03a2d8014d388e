package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to IntentStatus
		ok       bool
	}{
		{StatusPending, StatusConfirming, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusConfirmed, false},
		{StatusConfirming, StatusConfirmed, true},
		{StatusConfirming, StatusFailed, true},
		{StatusConfirming, StatusPending, false},
		{StatusConfirmed, StatusFailed, false},
		{StatusConfirmed, StatusConfirming, false},
		{StatusFailed, StatusConfirmed, false},
		{StatusFailed, StatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestPredecessorsOf(t *testing.T) {
	assert.ElementsMatch(t, []IntentStatus{StatusPending, StatusConfirming}, PredecessorsOf(StatusFailed))
	assert.ElementsMatch(t, []IntentStatus{StatusConfirming}, PredecessorsOf(StatusConfirmed))
	assert.Empty(t, PredecessorsOf(StatusPending))
}

func TestIntentUpdateApply(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	intent := &PurchaseIntent{Status: StatusPending}

	IntentUpdate{Status: StatusConfirming, SubmissionHash: "0xabc", At: now}.Apply(intent)
	assert.Equal(t, StatusConfirming, intent.Status)
	assert.Equal(t, "0xabc", intent.SubmissionHash)
	assert.Equal(t, now, *intent.SubmittedAt)
	assert.Nil(t, intent.SettledAt)

	fee := AmountFromInt64(42)
	IntentUpdate{Status: StatusConfirmed, BlockNumber: 7, Confirmations: 3, SettlementFee: &fee, At: now.Add(time.Minute)}.Apply(intent)
	assert.Equal(t, uint64(7), intent.BlockNumber)
	assert.Equal(t, "42", intent.SettlementFee.String())
	assert.Equal(t, "0xabc", intent.SubmissionHash)
	assert.NotNil(t, intent.SettledAt)
}

func TestPositionKeyRoundTrip(t *testing.T) {
	key := PositionKey("0xABCdef", 12)
	assert.Equal(t, "0xabcdef:12", key)

	addr, id, ok := ParsePositionKey(key)
	assert.True(t, ok)
	assert.Equal(t, "0xabcdef", addr)
	assert.Equal(t, int64(12), id)

	_, _, ok = ParsePositionKey("nocolon")
	assert.False(t, ok)
}

func TestProjectFilterMatch(t *testing.T) {
	active := ProjectActive
	p := &Project{ProjectLedger: ProjectLedger{Status: ProjectActive, ProjectType: "Solar", Location: "Tunis, Tunisia"}}

	assert.True(t, ProjectFilter{}.Match(p))
	assert.True(t, ProjectFilter{Status: &active, ProjectType: "Solar", Location: "tunis"}.Match(p))
	assert.False(t, ProjectFilter{ProjectType: "Wind"}.Match(p))
	assert.False(t, ProjectFilter{Location: "sfax"}.Match(p))
}

func TestAvailableShares(t *testing.T) {
	assert.Equal(t, int64(9900), ProjectLedger{TotalShares: 10000, SharesSold: 100}.AvailableShares())
	assert.Equal(t, int64(0), ProjectLedger{TotalShares: 10, SharesSold: 12}.AvailableShares())
}
