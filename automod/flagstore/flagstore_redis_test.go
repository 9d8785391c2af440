package flagstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisFlagStoreBasics(t *testing.T) {
	redisURL := os.Getenv("WARDEN_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("live test, set WARDEN_TEST_REDIS_URL to run against redis")
	}

	fs, err := NewRedisFlagStore(redisURL)
	require.NoError(t, err)

	key := "test-guild/" + t.Name()
	t.Cleanup(func() {
		_ = fs.Remove(context.Background(), key, []string{"banned", "kicked", "timed-out", "sanction-withheld"})
	})
	testFlagStoreBasics(t, fs, key)
}
