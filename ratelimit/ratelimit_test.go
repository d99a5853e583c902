// Copyright (c) 2024 Bryan Frimin <bryan@frimin.fr>.
//
// Permission to use, copy, modify, and/or distribute this software
// for any purpose with or without fee is hereby granted, provided
// that the above copyright notice and this permission notice appear
// in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
// WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
// AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR
// CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS
// OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT,
// NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN
// CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterFallbackBasic(t *testing.T) {
	lim := NewLimiter()
	ctx := context.Background()
	rate := Rate{Limit: 5, Window: time.Hour}

	for i := 0; i < 5; i++ {
		result, err := lim.Allow(ctx, "user-1", rate)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 4-i, result.Remaining)
	}

	result, err := lim.Allow(ctx, "user-1", rate)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestLimiterFallbackDifferentKeys(t *testing.T) {
	lim := NewLimiter()
	ctx := context.Background()
	rate := Rate{Limit: 2, Window: time.Hour}

	_, err := lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)
	_, err = lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)

	blocked, err := lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	other, err := lim.Allow(ctx, "key-2", rate)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
	assert.Equal(t, 1, other.Remaining)
}

func TestLimiterReset(t *testing.T) {
	lim := NewLimiter()
	ctx := context.Background()
	rate := Rate{Limit: 1, Window: time.Hour}

	_, err := lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)

	blocked, err := lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	require.NoError(t, lim.Reset(ctx, "key-1"))

	allowed, err := lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
}

func TestLimiterBlockedCacheFastPath(t *testing.T) {
	lim := NewLimiter()
	ctx := context.Background()
	rate := Rate{Limit: 1, Window: time.Minute}

	_, err := lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)

	first, err := lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)
	assert.False(t, first.Allowed)

	second, err := lim.Allow(ctx, "key-1", rate)
	require.NoError(t, err)
	assert.False(t, second.Allowed)

	val, ok := lim.blockedCache.Load("key-1:60000")
	require.True(t, ok)
	assert.WithinDuration(t, first.ResetAt, val.(time.Time), time.Second)
}

func TestLimiterCheckWrappersNamespaceKeys(t *testing.T) {
	lim := NewLimiter()
	ctx := context.Background()
	rate := Rate{Limit: 1, Window: time.Hour}

	allowed, err := lim.Check(ctx, "abc", rate)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)

	// Same identifier through a different namespace gets its own bucket.
	ip, err := lim.CheckIP(ctx, "abc", rate)
	require.NoError(t, err)
	assert.True(t, ip.Allowed)

	user, err := lim.CheckUser(ctx, "abc", rate)
	require.NoError(t, err)
	assert.True(t, user.Allowed)

	blocked, err := lim.Check(ctx, "abc", rate)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)
}
