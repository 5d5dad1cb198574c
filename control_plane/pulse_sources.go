package main

import (
	"context"

	"github.com/nexusvanguard/control-plane/control_plane/pulse"
)

// stubScoreboardFetcher and stubBoxscoreFetcher stand in for the external
// sports-data API client: no repo in the retrieval pack ships an NBA stats
// client, so the producer loop here drives zero live games through an
// otherwise fully-wired pipeline (metrics, document writes, SSE) rather
// than fabricate an unstubbed third-party integration. Wiring a live
// fetcher means satisfying pulse.ScoreboardFetcher/BoxscoreFetcher with a
// real HTTP client.
func stubScoreboardFetcher(ctx context.Context) ([]pulse.GameSummary, error) {
	return nil, nil
}

func stubBoxscoreFetcher(ctx context.Context, gameID string) (pulse.Boxscore, error) {
	return pulse.Boxscore{GameID: gameID}, nil
}
