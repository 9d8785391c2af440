package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCacheStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(10, time.Hour)

	_, ok, err := cs.Get(ctx, "verdict", "abc")
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(cs.Set(ctx, "verdict", "abc", `{"label":"hate"}`))
	v, ok, err := cs.Get(ctx, "verdict", "abc")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(`{"label":"hate"}`, v)

	// namespaces are distinct
	_, ok, _ = cs.Get(ctx, "other", "abc")
	assert.False(ok)

	assert.NoError(cs.Purge(ctx, "verdict", "abc"))
	_, ok, _ = cs.Get(ctx, "verdict", "abc")
	assert.False(ok)
}

func TestMemCacheStoreExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(10, 20*time.Millisecond)
	assert.NoError(cs.Set(ctx, "verdict", "abc", "x"))
	time.Sleep(100 * time.Millisecond)
	_, ok, _ := cs.Get(ctx, "verdict", "abc")
	assert.False(ok)
}

func TestRedisCacheStore(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	cs, err := NewRedisCacheStore("redis://localhost:6379/0", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	assert.NoError(cs.Set(ctx, "verdict", "abc", "x"))
	v, ok, err := cs.Get(ctx, "verdict", "abc")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("x", v)
	assert.NoError(cs.Purge(ctx, "verdict", "abc"))
}
