package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/modwarden/warden/automod/cachestore"
)

const verdictCacheName = "classifier-verdict"

// Wraps a Classifier with a verdict cache, keyed by a digest of the input. Cache failures are logged and otherwise ignored; only successful verdicts are cached.
type CachedClassifier struct {
	Inner  Classifier
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

var _ Classifier = (*CachedClassifier)(nil)

func NewCachedClassifier(inner Classifier, cache cachestore.CacheStore) *CachedClassifier {
	return &CachedClassifier{
		Inner:  inner,
		Cache:  cache,
		Logger: slog.Default().With("system", "classifier"),
	}
}

func inputKey(in Input) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(in.Text)))
	for _, u := range in.ImageURLs {
		h.Write([]byte{0})
		h.Write([]byte(u))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (cc *CachedClassifier) Classify(ctx context.Context, in Input) (*Verdict, error) {
	key := inputKey(in)
	raw, ok, err := cc.Cache.Get(ctx, verdictCacheName, key)
	if err != nil {
		cc.Logger.Warn("verdict cache read failed", "err", err)
	} else if ok {
		var v Verdict
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return &v, nil
		}
		cc.Logger.Warn("discarding corrupt cached verdict", "key", key)
	}

	v, err := cc.Inner.Classify(ctx, in)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(v); err == nil {
		if err := cc.Cache.Set(ctx, verdictCacheName, key, string(b)); err != nil {
			cc.Logger.Warn("verdict cache write failed", "err", err)
		}
	}
	return v, nil
}
