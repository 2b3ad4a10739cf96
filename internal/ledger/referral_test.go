package ledger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghibli-bot/internal/config"
)

func TestIssueCode_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.ledger.IssueCode(ctx, "100")
	require.NoError(t, err)
	assert.Len(t, code, codeLength)

	again, err := f.ledger.IssueCode(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, code, again)

	other, err := f.ledger.IssueCode(ctx, "101")
	require.NoError(t, err)
	assert.NotEqual(t, code, other)

	assert.Equal(t, "https://t.me/ghibli_test_bot?start=ref_"+code, f.ledger.ReferralLink(code))
}

func TestIssueCode_UniqueUnderFixedClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := f.ledger.IssueCode(ctx, fmt.Sprintf("%d", 200+i))
		require.NoError(t, err)
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestRedeem_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.ledger.IssueCode(ctx, "100")
	require.NoError(t, err)

	referrer, err := f.ledger.Redeem(ctx, "200", code)
	require.NoError(t, err)
	assert.Equal(t, "100", referrer.UserID)
	assert.Equal(t, 4, referrer.RemainingLimit)
	assert.Equal(t, []string{"200"}, referrer.Referral.ReferredUsers)
	assert.Equal(t, 1, referrer.Referral.TotalReferrals)

	referee, err := f.ledger.GetOrCreate(ctx, "200", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, referee.RemainingLimit)
	require.NotNil(t, referee.Referral.ReferredBy)
	assert.Equal(t, "100", *referee.Referral.ReferredBy)

	sum, err := f.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalConversions)

	top, err := f.ledger.TopReferrers(ctx)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "100", top[0].UserID)
	assert.Equal(t, 1, top[0].Score)
}

func TestRedeem_SelfReferralRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.ledger.IssueCode(ctx, "100")
	require.NoError(t, err)
	before, err := os.ReadFile(f.path)
	require.NoError(t, err)

	_, err = f.ledger.Redeem(ctx, "100", code)
	assert.ErrorIs(t, err, ErrSelfReferral)
	assert.ErrorIs(t, err, ErrReferralInvalid)

	after, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRedeem_UnknownCode(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Redeem(context.Background(), "100", "nope1234")
	assert.ErrorIs(t, err, ErrUnknownCode)
	assert.ErrorIs(t, err, ErrReferralInvalid)
}

func TestRedeem_NullLinkInDocument(t *testing.T) {
	f := newFixture(t)
	doc := `{"users":{},"referrals":{"active_links":{"ABCDEFGH":null}}}`
	require.NoError(t, os.WriteFile(f.path, []byte(doc), 0o644))

	_, err := f.ledger.Redeem(context.Background(), "5", "ABCDEFGH")
	assert.ErrorIs(t, err, ErrUnknownCode)

	sum, err := f.ledger.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.ActiveLinks)
}

func TestRedeem_SingleReferralPerReferee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	codeA, err := f.ledger.IssueCode(ctx, "A")
	require.NoError(t, err)
	codeC, err := f.ledger.IssueCode(ctx, "C")
	require.NoError(t, err)

	_, err = f.ledger.Redeem(ctx, "B", codeA)
	require.NoError(t, err)

	_, err = f.ledger.Redeem(ctx, "B", codeC)
	assert.ErrorIs(t, err, ErrAlreadyReferred)
	_, err = f.ledger.Redeem(ctx, "B", codeA)
	assert.ErrorIs(t, err, ErrAlreadyReferred)

	b, err := f.ledger.GetOrCreate(ctx, "B", nil)
	require.NoError(t, err)
	require.NotNil(t, b.Referral.ReferredBy)
	assert.Equal(t, "A", *b.Referral.ReferredBy)
	assert.Equal(t, 3, b.RemainingLimit)

	c, err := f.ledger.GetOrCreate(ctx, "C", nil)
	require.NoError(t, err)
	assert.Empty(t, c.Referral.ReferredUsers)
	assert.Equal(t, 2, c.RemainingLimit)
}

func TestRedeem_ExtraBonusFiresOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.ledger.IssueCode(ctx, "100")
	require.NoError(t, err)

	var quotas []int
	for i := 1; i <= 6; i++ {
		referrer, err := f.ledger.Redeem(ctx, fmt.Sprintf("%d", 200+i), code)
		require.NoError(t, err)
		quotas = append(quotas, referrer.RemainingLimit)
		assert.Equal(t, i >= 5, referrer.Referral.BonusClaimed)
	}

	// +2 per referral, +3 once when the fifth referral lands.
	assert.Equal(t, []int{4, 6, 8, 10, 15, 17}, quotas)
}

func TestRedeem_Disabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Referral.Enabled = false })

	_, err := f.ledger.Redeem(context.Background(), "200", "whatever")
	assert.ErrorIs(t, err, ErrReferralDisabled)
}

func TestRedeem_ConcurrentSameReferee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var codes []string
	for i := 0; i < 8; i++ {
		code, err := f.ledger.IssueCode(ctx, fmt.Sprintf("%d", 100+i))
		require.NoError(t, err)
		codes = append(codes, code)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			if _, err := f.ledger.Redeem(ctx, "999", code); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrAlreadyReferred)
			}
		}(code)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	referee, err := f.ledger.GetOrCreate(ctx, "999", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, referee.RemainingLimit)

	sum, err := f.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalConversions)
}
