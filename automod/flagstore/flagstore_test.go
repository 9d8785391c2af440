package flagstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Shared by the memory and redis backends.
func testFlagStoreBasics(t *testing.T, fs FlagStore, key string) {
	assert := assert.New(t)
	ctx := context.Background()

	l, err := fs.Get(ctx, key)
	assert.NoError(err)
	assert.Empty(l)

	assert.NoError(fs.Add(ctx, key, []string{"timed-out", "kicked"}))
	assert.NoError(fs.Add(ctx, key, []string{"timed-out", "banned"}))
	l, err = fs.Get(ctx, key)
	assert.NoError(err)
	assert.ElementsMatch([]string{"banned", "kicked", "timed-out"}, l)

	assert.NoError(fs.Remove(ctx, key, []string{"timed-out", "banned", "sanction-withheld"}))
	l, err = fs.Get(ctx, key)
	assert.NoError(err)
	assert.Equal([]string{"kicked"}, l)

	assert.NoError(fs.Remove(ctx, key, []string{"kicked"}))
	l, err = fs.Get(ctx, key)
	assert.NoError(err)
	assert.Empty(l)
}

func TestMemFlagStoreBasics(t *testing.T) {
	testFlagStoreBasics(t, NewMemFlagStore(), "g1/u1")
}

func TestMemFlagStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fs := NewMemFlagStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(fs.Add(ctx, "g1/u1", []string{"sanction-withheld"}))
				_, err := fs.Get(ctx, "g1/u1")
				assert.NoError(err)
			}
		}()
	}
	wg.Wait()

	l, err := fs.Get(ctx, "g1/u1")
	assert.NoError(err)
	assert.Equal([]string{"sanction-withheld"}, l)
}
