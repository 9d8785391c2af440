package setstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemSetStore(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	s := NewMemSetStore()
	ok, err := s.InSet(ctx, SetAttachmentAllow, "cdn.example.com")
	assert.NoError(err)
	assert.False(ok)

	require.NoError(s.LoadFromFileJSON("testdata/sets.json"))
	ok, err = s.InSet(ctx, SetAttachmentAllow, "cdn.example.com")
	assert.NoError(err)
	assert.True(ok)

	ok, err = s.InSet(ctx, SetSpamKeywords, "cheap followers")
	assert.NoError(err)
	assert.True(ok)

	members, err := s.Members(ctx, SetSpamKeywords)
	assert.NoError(err)
	assert.ElementsMatch([]string{"cheap followers", "crypto giveaway"}, members)

	s.Add(SetSpamKeywords, "FREE GEMS")
	ok, _ = s.InSet(ctx, SetSpamKeywords, "free gems")
	assert.True(ok)

	assert.Error(s.LoadFromFileJSON("testdata/missing.json"))
}

func TestMemSetStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemSetStore()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Add("numbers", "one", "two")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := s.InSet(ctx, "numbers", "one")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	members, err := s.Members(ctx, "numbers")
	assert.NoError(t, err)
	assert.Len(t, members, 2)
}
