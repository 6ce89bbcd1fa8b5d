package token

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time, loc *time.Location) Clock {
	return NewClock(loc, func() time.Time { return t })
}

func TestClock_State(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(now, time.UTC)

	yesterday := Date(2026, 10, 18)
	today := Date(2026, 10, 19)
	tomorrow := Date(2026, 10, 20)

	tests := []struct {
		name      string
		active    bool
		expiresOn time.Time
		want      State
	}{
		{"active expired", true, yesterday, StateActiveExpired},
		{"active expires today", true, today, StateActiveValid},
		{"active expires in future", true, tomorrow, StateActiveValid},
		{"inactive expired", false, yesterday, StateInactive},
		{"inactive expires today", false, today, StateInactive},
		{"inactive expires in future", false, tomorrow, StateInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := Token{Value: "abc", Active: tt.active, ExpiresOn: tt.expiresOn}
			assert.Equal(t, tt.want, clock.State(tok))

			wantValid := tt.active && !today.After(tt.expiresOn)
			assert.Equal(t, wantValid, clock.Valid(tok))
			assert.Equal(t, wantValid, Found(tok).Valid(clock))
		})
	}
}

func TestClock_ExpiryBoundary(t *testing.T) {
	tok := Token{Value: "abc", Active: true, ExpiresOn: Date(2026, 10, 19)}

	t.Run("valid through the end of the expiry date", func(t *testing.T) {
		clock := fixedClock(time.Date(2026, 10, 19, 23, 59, 59, 0, time.UTC), time.UTC)
		assert.True(t, clock.Valid(tok))
		assert.Equal(t, time.Second, clock.TTL(tok))
	})

	t.Run("invalid from the start of the next day", func(t *testing.T) {
		clock := fixedClock(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), time.UTC)
		assert.False(t, clock.Valid(tok))
		assert.Equal(t, time.Duration(0), clock.TTL(tok))
	})
}

func TestClock_CutoffHonoursLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	tok := Token{Value: "abc", Active: true, ExpiresOn: Date(2026, 10, 19)}

	// 15:00 UTC on the 19th is already the 20th at UTC+10.
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

	utc := fixedClock(now, time.UTC)
	assert.True(t, utc.Valid(tok))
	assert.Equal(t, 9*time.Hour, utc.TTL(tok))

	local := fixedClock(now, loc)
	assert.False(t, local.Valid(tok))
	assert.LessOrEqual(t, local.TTL(tok), time.Duration(0))

	// The cutoff is the same wall-clock instant the validity check uses.
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, loc), local.Cutoff(tok))
}

func TestClock_DaysRemaining(t *testing.T) {
	clock := fixedClock(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), time.UTC)

	assert.Equal(t, 7, clock.DaysRemaining(Token{ExpiresOn: Date(2026, 10, 26)}))
	assert.Equal(t, 0, clock.DaysRemaining(Token{ExpiresOn: Date(2026, 10, 19)}))
	assert.Equal(t, -2, clock.DaysRemaining(Token{ExpiresOn: Date(2026, 10, 17)}))
	assert.Equal(t, Date(2026, 10, 26), clock.DaysFromToday(7))
}

func TestStatus_String(t *testing.T) {
	clock := fixedClock(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), time.UTC)

	valid := clock.Status(Token{Value: "foo", Active: true, ExpiresOn: Date(2026, 10, 26)})
	assert.Equal(t, "foo - valid until 2026-10-26", valid.String())

	inactive := clock.Status(Token{Value: "foo", Active: false, ExpiresOn: Date(2026, 10, 26)})
	assert.Equal(t, "foo - inactive", inactive.String())

	expired := clock.Status(Token{Value: "foo", Active: true, ExpiresOn: Date(2026, 10, 1)})
	assert.Equal(t, "foo - expired on 2026-10-01", expired.String())

	data, err := json.Marshal(expired)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"expired"`)
}

func TestLookup(t *testing.T) {
	clock := fixedClock(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), time.UTC)

	t.Run("empty is never valid", func(t *testing.T) {
		assert.True(t, Empty.IsEmpty())
		assert.False(t, Empty.Valid(clock))
		_, ok := Empty.Token()
		assert.False(t, ok)
	})

	t.Run("found carries the token", func(t *testing.T) {
		tok := Token{Value: "foo", Active: true, ExpiresOn: Date(2026, 10, 19)}
		lookup := Found(tok)
		got, ok := lookup.Token()
		require.True(t, ok)
		assert.Equal(t, tok, got)
		assert.True(t, lookup.Valid(clock))
	})
}

func TestRandomValue(t *testing.T) {
	t.Run("uses the alphanumeric alphabet", func(t *testing.T) {
		value, err := RandomValue(MaxValueLength)
		require.NoError(t, err)
		assert.Len(t, value, MaxValueLength)
		for _, r := range value {
			assert.Contains(t, alphabet, string(r))
		}
	})

	t.Run("values differ", func(t *testing.T) {
		a, err := RandomValue(20)
		require.NoError(t, err)
		b, err := RandomValue(20)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("rejects bad lengths", func(t *testing.T) {
		_, err := RandomValue(0)
		assert.Error(t, err)
		_, err = RandomValue(MaxValueLength + 1)
		assert.Error(t, err)
	})
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "***", MaskValue("short"))
	assert.Equal(t, "abcdefgh***", MaskValue("abcdefghijkl"))
}
