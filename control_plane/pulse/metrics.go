// Package pulse implements the live pulse producer: a 10s
// poll-boxscore-enrich-write loop with per-player advanced metrics and
// an SSE bridge. The loop is fail-safe: exceptions never kill it and the
// poll cadence is preserved across failed cycles.
package pulse

import "math"

// leagueAverageDefRating and leagueAveragePace anchor the tri-threshold
// matchup-difficulty bucket and the pace multiplier; both are
// recalibrated once per season.
const (
	leagueAverageDefRating = 113.0
	leagueAveragePace      = 99.0
)

// BoxscorePlayerStat is the minimal per-player raw input the producer
// needs from a boxscore fetch to compute every derived metric.
type BoxscorePlayerStat struct {
	PlayerID      string
	Name          string
	TeamID        string
	MinutesPlayed float64
	Points        int
	Rebounds      int
	Assists       int
	Steals        int
	Blocks        int
	Turnovers     int
	FGMade        int
	FGAttempted   int
	FG3Made       int
	FTMade        int
	FTAttempted   int
	PersonalFouls int
	PlusMinus     float64
}

// PlayerMetrics is the enriched per-player record computed each cycle.
type PlayerMetrics struct {
	PlayerID          string     `json:"player_id"`
	Name              string     `json:"name"`
	TeamID            string     `json:"team_id"`
	PIE               float64    `json:"pie"`
	TSPercent         float64    `json:"ts_pct"`
	EFGPercent        float64    `json:"efg_pct"`
	PlusMinusPerMin   float64    `json:"plus_minus_per_min"`
	PlusMinusLabel    string     `json:"plus_minus_label"`
	AssistRate        float64    `json:"assist_rate"`
	Per36             Per36Stats `json:"per_36"`
	FatiguePenalty    float64    `json:"fatigue_penalty"`
	UsageRate         float64    `json:"usage_rate"`
	UsageVacuum       float64    `json:"usage_vacuum"`
	MatchupDifficulty string     `json:"matchup_difficulty"`
	HeatScale         string     `json:"heat_scale"`
	GarbageTime       bool       `json:"garbage_time"`
}

type Per36Stats struct {
	Points   float64 `json:"points"`
	Rebounds float64 `json:"rebounds"`
	Assists  float64 `json:"assists"`
}

// SeasonBaseline is the comparison point for usage_vacuum and heat_scale;
// loaded from store.CollectionSeasonBaselines ahead of the cycle.
type SeasonBaseline struct {
	UsageRate   float64
	RollingTS   float64
}

// TeamContext is the per-team state the producer threads through the
// opponent-difficulty and pace computations.
type TeamContext struct {
	TeamID            string
	OpponentDefRating float64
	Pace              float64
}

// PIE divides a player's game-impact sum by the combined-game total
// (both teams), clamped so the denominator never drops below 10 to avoid
// blowing up on garbage-time/early-game noise.
func PIE(p BoxscorePlayerStat, combinedGameTotal float64) float64 {
	impact := float64(p.Points+p.Rebounds+p.Assists+p.Steals+p.Blocks) -
		float64(p.Turnovers+(p.FGAttempted-p.FGMade)+(p.FTAttempted-p.FTMade)+p.PersonalFouls)
	denom := math.Max(combinedGameTotal, 10)
	return impact / denom
}

// TSPercent is true shooting percentage.
func TSPercent(p BoxscorePlayerStat) float64 {
	denom := 2 * (float64(p.FGAttempted) + 0.44*float64(p.FTAttempted))
	if denom <= 0 {
		return 0
	}
	return float64(p.Points) / denom
}

// EFGPercent is effective field goal percentage.
func EFGPercent(p BoxscorePlayerStat) float64 {
	if p.FGAttempted == 0 {
		return 0
	}
	return (float64(p.FGMade) + 0.5*float64(p.FG3Made)) / float64(p.FGAttempted)
}

// PlusMinusPerMin and its categorical label.
func PlusMinusPerMin(p BoxscorePlayerStat) (float64, string) {
	if p.MinutesPlayed <= 0 {
		return 0, "liability"
	}
	perMin := p.PlusMinus / p.MinutesPlayed
	label := "liability"
	switch {
	case perMin >= 0.5:
		label = "dominant"
	case perMin >= 0:
		label = "positive"
	case perMin >= -0.5:
		label = "negative"
	}
	return perMin, label
}

func AssistRate(p BoxscorePlayerStat) float64 {
	if p.MinutesPlayed <= 0 {
		return 0
	}
	return float64(p.Assists) / p.MinutesPlayed * 36
}

func Per36(p BoxscorePlayerStat) Per36Stats {
	if p.MinutesPlayed <= 0 {
		return Per36Stats{}
	}
	scale := 36 / p.MinutesPlayed
	return Per36Stats{
		Points:   float64(p.Points) * scale,
		Rebounds: float64(p.Rebounds) * scale,
		Assists:  float64(p.Assists) * scale,
	}
}

// FatiguePenalty grows with minutes played beyond a normal workload,
// capped at 0.15.
func FatiguePenalty(p BoxscorePlayerStat) float64 {
	const normalLoad = 30.0
	if p.MinutesPlayed <= normalLoad {
		return 0
	}
	penalty := (p.MinutesPlayed - normalLoad) * 0.01
	return math.Min(penalty, 0.15)
}

// UsageRate is a live-game approximation: possessions ended by the
// player (FGA + 0.44*FTA + TOV) per minute played, times 100/5.
// elapsedMinutes cancels out of the expression; it only gates the zero case.
func UsageRate(p BoxscorePlayerStat, elapsedMinutes float64) float64 {
	if p.MinutesPlayed <= 0 || elapsedMinutes <= 0 {
		return 0
	}
	possessionsEnded := float64(p.FGAttempted) + 0.44*float64(p.FTAttempted) + float64(p.Turnovers)
	return (possessionsEnded * (elapsedMinutes / p.MinutesPlayed)) / elapsedMinutes * 100 / 5
}

// UsageVacuum compares live usage against the season baseline: positive
// means the player is absorbing more offensive load than usual (often
// because a teammate is out).
func UsageVacuum(liveUsage float64, baseline SeasonBaseline) float64 {
	if baseline.UsageRate <= 0 {
		return 0
	}
	return liveUsage - baseline.UsageRate
}

// MatchupDifficulty buckets the opponent's defensive rating around the
// league average with a +/-3 tri-threshold.
func MatchupDifficulty(opponentDefRating float64) string {
	switch {
	case opponentDefRating <= leagueAverageDefRating-3:
		return "elite"
	case opponentDefRating >= leagueAverageDefRating+3:
		return "soft"
	default:
		return "average"
	}
}

// HeatScale compares live TS% against the season rolling TS%.
func HeatScale(liveTS float64, baseline SeasonBaseline) string {
	if baseline.RollingTS <= 0 {
		return "steady"
	}
	delta := liveTS - baseline.RollingTS
	switch {
	case delta >= 0.05:
		return "hot"
	case delta <= -0.05:
		return "cold"
	default:
		return "steady"
	}
}

// GarbageTime derives from period, clock and margin: 4th quarter or
// later, under 3 minutes remaining, margin of 20+.
func GarbageTime(period int, clockSecondsRemaining int, margin int) bool {
	return period >= 4 && clockSecondsRemaining <= 180 && absInt(margin) >= 20
}

// GamePhase classifies the live game.
func GamePhase(period int, clockSecondsRemaining int, margin int) string {
	switch {
	case GarbageTime(period, clockSecondsRemaining, margin):
		return "garbage"
	case absInt(margin) >= 20:
		return "blowout"
	case period >= 4 && absInt(margin) <= 5:
		return "clutch"
	default:
		return "normal"
	}
}

// PaceMultiplier is average team pace over the league average.
func PaceMultiplier(teamPaceA, teamPaceB float64) float64 {
	avg := (teamPaceA + teamPaceB) / 2
	if leagueAveragePace == 0 {
		return 1
	}
	return avg / leagueAveragePace
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// EnrichPlayer computes the full PlayerMetrics record for one player,
// given the combined-game PIE denominator, elapsed game minutes,
// opponent defensive rating and the player's season baseline.
func EnrichPlayer(p BoxscorePlayerStat, combinedGameTotal, elapsedMinutes, opponentDefRating float64, period, clockSecondsRemaining, margin int, baseline SeasonBaseline) PlayerMetrics {
	ts := TSPercent(p)
	usage := UsageRate(p, elapsedMinutes)
	pm, label := PlusMinusPerMin(p)

	return PlayerMetrics{
		PlayerID:          p.PlayerID,
		Name:              p.Name,
		TeamID:            p.TeamID,
		PIE:               PIE(p, combinedGameTotal),
		TSPercent:         ts,
		EFGPercent:        EFGPercent(p),
		PlusMinusPerMin:   pm,
		PlusMinusLabel:    label,
		AssistRate:        AssistRate(p),
		Per36:             Per36(p),
		FatiguePenalty:    FatiguePenalty(p),
		UsageRate:         usage,
		UsageVacuum:       UsageVacuum(usage, baseline),
		MatchupDifficulty: MatchupDifficulty(opponentDefRating),
		HeatScale:         HeatScale(ts, baseline),
		GarbageTime:       GarbageTime(period, clockSecondsRemaining, margin),
	}
}
