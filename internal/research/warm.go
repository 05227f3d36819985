package research

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/zjrosen/sift/internal/cachemanager"
	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/log"
	"github.com/zjrosen/sift/internal/progress"
)

// warmLimit bounds how many recent runs WarmCache looks at.
const warmLimit = 500

// WarmCache loads answers of recent successful runs into cache so a repeated
// question is answered without contacting the service. Each entry keeps only
// the part of ttl that has not yet elapsed since its run finished. It returns
// the number of entries loaded.
func WarmCache(
	ctx context.Context,
	runs history.RunRepository,
	cache cachemanager.CacheManager[AnswerKey, json.RawMessage],
	ttl time.Duration,
) (int, error) {
	if runs == nil || cache == nil || ttl <= 0 {
		return 0, nil
	}
	recent, err := runs.List(ctx, warmLimit)
	if err != nil {
		return 0, fmt.Errorf("listing runs: %w", err)
	}

	// List orders by start time; freshness is decided by finish time.
	recent = slices.Clone(recent)
	slices.SortStableFunc(recent, func(a, b *history.Run) int {
		return b.FinishedAt.Compare(a.FinishedAt)
	})

	now := time.Now()
	loaded := 0
	// Latest finish first, so the freshest answer for a question wins.
	seen := make(map[AnswerKey]bool)
	for _, run := range recent {
		if run.Outcome != progress.KindSucceeded || run.Payload == nil {
			continue
		}
		remaining := ttl - now.Sub(run.FinishedAt)
		if remaining <= 0 {
			// Every later run finished earlier still.
			break
		}
		key := NormalizeQuestion(run.Question)
		if seen[key] {
			continue
		}
		seen[key] = true
		cache.Set(ctx, key, run.Payload, remaining)
		loaded++
	}
	log.Debug(log.CatCache, "cache warmed from history", "entries", loaded, "scanned", len(recent))
	return loaded, nil
}
