package ledger

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghibli-bot/internal/models"
)

func TestGetOrCreate_NewUserDefaults(t *testing.T) {
	f := newFixture(t)

	u, err := f.ledger.GetOrCreate(context.Background(), "100", &Profile{Username: "totoro", FirstName: "Totoro"})
	require.NoError(t, err)

	assert.Equal(t, "100", u.UserID)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, 2, u.RemainingLimit)
	assert.Equal(t, "2025-04-08", u.LastResetDate)
	assert.Equal(t, 0.6, u.Preferences.Strength)
	assert.Equal(t, "totoro", u.Username)
	assert.Empty(t, u.Referral.Code)
	assert.Nil(t, u.Referral.ReferredBy)
}

func TestGetOrCreate_ProfileOverwritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.GetOrCreate(ctx, "100", &Profile{Username: "old"})
	require.NoError(t, err)
	u, err := f.ledger.GetOrCreate(ctx, "100", &Profile{Username: "new", LastName: "Kusakabe"})
	require.NoError(t, err)

	assert.Equal(t, "new", u.Username)
	assert.Equal(t, "Kusakabe", u.LastName)
}

func TestModifyQuota_Clamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remaining, err := f.ledger.ModifyQuota(ctx, "100", -1000)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	remaining, err = f.ledger.ModifyQuota(ctx, "100", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)

	for _, d := range []int{-3, -1, 0, -100, 4, -9} {
		remaining, err = f.ledger.ModifyQuota(ctx, "100", d)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, remaining, 0)
	}
}

func TestModifyQuota_SaturatesOnLargeGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remaining, err := f.ledger.ModifyQuota(ctx, "7", math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, remaining)

	remaining, err = f.ledger.ModifyQuota(ctx, "7", 1)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, remaining)

	remaining, err = f.ledger.ModifyQuota(ctx, "7", math.MinInt)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestGetOrCreate_ResetIdempotentWithinDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.ModifyQuota(ctx, "100", -1)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour)
	first, err := f.ledger.GetOrCreate(ctx, "100", nil)
	require.NoError(t, err)
	second, err := f.ledger.GetOrCreate(ctx, "100", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, first.RemainingLimit)
	assert.Equal(t, 1, second.RemainingLimit)
}

func TestGetOrCreate_ResetCrossesDayBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remaining, err := f.ledger.ModifyQuota(ctx, "100", -2)
	require.NoError(t, err)
	require.Equal(t, 0, remaining)

	f.clock.Advance(24 * time.Hour)
	u, err := f.ledger.GetOrCreate(ctx, "100", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, u.RemainingLimit)
	assert.Equal(t, "2025-04-09", u.LastResetDate)
}

func TestGetOrCreate_ResetUsesVIPAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.SetRole(ctx, "100", models.RoleVIP)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	u, err := f.ledger.GetOrCreate(ctx, "100", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, u.RemainingLimit)
}

func TestGetOrCreate_ResetUsesReferenceTimezone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.loc = time.FixedZone("WIB", 7*3600)

	// 2025-04-08 10:00 UTC is 17:00 WIB; 7 hours later it is the next day in WIB.
	_, err := f.ledger.ModifyQuota(ctx, "100", -2)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Hour)
	u, err := f.ledger.GetOrCreate(ctx, "100", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, u.RemainingLimit)

	f.clock.Advance(time.Hour)
	u, err = f.ledger.GetOrCreate(ctx, "100", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, u.RemainingLimit)
	assert.Equal(t, "2025-04-09", u.LastResetDate)
}

func TestCheckQuota_Exhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remaining, err := f.ledger.CheckQuota(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	_, err = f.ledger.ModifyQuota(ctx, "100", -2)
	require.NoError(t, err)

	_, err = f.ledger.CheckQuota(ctx, "100")
	assert.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestCommitGeneration_UpdatesStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.ledger.CommitGeneration(ctx, "100")
	require.NoError(t, err)

	assert.Equal(t, 1, u.RemainingLimit)
	assert.Equal(t, 1, u.TotalGenerations)
	require.NotNil(t, u.LastGenerationTime)
	assert.True(t, u.LastGenerationTime.Equal(f.clock.Now()))

	sum, err := f.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalGenerations)

	top, err := f.ledger.TopGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "100", top[0].UserID)
	assert.Equal(t, 1, top[0].Score)
}

func TestCommitGeneration_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.ModifyQuota(ctx, "100", 38)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.CommitGeneration(ctx, "100")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := f.ledger.GetOrCreate(ctx, "100", nil)
	require.NoError(t, err)
	assert.Equal(t, 15, u.RemainingLimit)
	assert.Equal(t, 25, u.TotalGenerations)

	sum, err := f.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, sum.TotalGenerations)
}

func TestUpdateUser_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.UpdateUser(context.Background(), "404", func(u *models.UserRecord) {
		u.RemainingLimit = 10
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUser_GuardsInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.ledger.IssueCode(ctx, "100")
	require.NoError(t, err)

	u, err := f.ledger.UpdateUser(ctx, "100", func(u *models.UserRecord) {
		u.UserID = "999"
		u.Role = models.RoleOwner
		u.RemainingLimit = -4
		u.Referral.Code = "hijacked"
		u.Status = "banned"
	})
	require.NoError(t, err)

	assert.Equal(t, "100", u.UserID)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, 0, u.RemainingLimit)
	assert.Equal(t, code, u.Referral.Code)
	assert.Equal(t, "banned", u.Status)
}

func TestSetStrength(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.ledger.SetStrength(ctx, "100", 0.75)
	require.NoError(t, err)
	assert.Equal(t, 0.75, u.Preferences.Strength)

	_, err = f.ledger.SetStrength(ctx, "100", 0.9)
	assert.ErrorIs(t, err, ErrInvalidStrength)
	_, err = f.ledger.SetStrength(ctx, "100", 0.1)
	assert.ErrorIs(t, err, ErrInvalidStrength)
}
