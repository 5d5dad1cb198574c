package store

import "fmt"

// Collection names for the document store.
const (
	CollectionIncidents        = "incidents"
	CollectionVanguardAnalysis = "vanguard_analysis"
	CollectionLiveGames        = "live_games"
	CollectionLiveLeaders      = "live_leaders"
	CollectionPlayerH2H        = "player_h2h"
	CollectionPlayerH2HGames   = "player_h2h_games"
	CollectionSeasonBaselines  = "season_baselines"
	CollectionVanguardMetadata = "vanguard_metadata"
	CollectionLearningLedger   = "vanguard_learning_ledger"
	CollectionVanguardAudit    = "vanguard_audit"
)

// GameLogCollection namespaces a day's game logs: game_logs/{date}/{gameId}.
func GameLogCollection(date string) string {
	return fmt.Sprintf("game_logs/%s", date)
}

// SeasonBaselineID namespaces a season baseline: {season}/{players|teams}/{id}.
func SeasonBaselineID(season, kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", season, kind, id)
}

// docKey is the backend-level key a document is stored under.
func docKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

// docScanPattern matches every document in a collection.
func docScanPattern(collection string) string {
	return fmt.Sprintf("doc:%s:*", collection)
}

// RateLimitKey builds the limiter's Lua-script key: rl:{ip}:{bucket}.
func RateLimitKey(ip, bucket string) string {
	return fmt.Sprintf("rl:%s:%s", ip, bucket)
}

// PresenceKey tracks liveness of a dependency or worker: presence:{type}:{id}.
func PresenceKey(kind, id string) string {
	return fmt.Sprintf("presence:%s:%s", kind, id)
}
