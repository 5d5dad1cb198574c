package pulse

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
	"github.com/nexusvanguard/control-plane/control_plane/shadowrace"
	"github.com/nexusvanguard/control-plane/control_plane/store"
)

// GameSummary is the scoreboard-level view of one game, as returned by
// ScoreboardFetcher.
type GameSummary struct {
	GameID                string `json:"game_id"`
	Status                string `json:"status"` // "live", "scheduled", "final"
	HomeTeam              string `json:"home_team"`
	AwayTeam              string `json:"away_team"`
	Period                int    `json:"period"`
	ClockSecondsRemaining int    `json:"clock_seconds_remaining"`
	HomeScore             int    `json:"home_score"`
	AwayScore             int    `json:"away_score"`
}

// Boxscore is the per-game detail ScoreboardFetcher's companion,
// BoxscoreFetcher, returns for a single live game.
type Boxscore struct {
	GameID         string
	Players        []BoxscorePlayerStat
	HomeTeam       TeamContext
	AwayTeam       TeamContext
	ElapsedMinutes float64
}

// LiveGameState is the fully-assembled per-game record written to the
// document store and pushed over SSE.
type LiveGameState struct {
	GameID                string          `json:"game_id"`
	Status                string          `json:"status"`
	Period                int             `json:"period"`
	ClockSecondsRemaining int             `json:"clock_seconds_remaining"`
	HomeTeam              string          `json:"home_team"`
	AwayTeam              string          `json:"away_team"`
	HomeScore             int             `json:"home_score"`
	AwayScore             int             `json:"away_score"`
	GamePhase             string          `json:"game_phase"`
	PaceMultiplier        float64         `json:"pace_multiplier"`
	Players               []PlayerMetrics `json:"players"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ScoreboardFetcher fetches the current live scoreboard.
type ScoreboardFetcher func(ctx context.Context) ([]GameSummary, error)

// BoxscoreFetcher fetches one game's boxscore.
type BoxscoreFetcher func(ctx context.Context, gameID string) (Boxscore, error)

// BaselineLookup resolves a player's season baseline for usage_vacuum /
// heat_scale; missing baselines return the zero value, which both
// formulas treat as "no comparison available".
type BaselineLookup func(playerID string) SeasonBaseline

// Status is the lightweight producer status exposed at /live/status.
type Status struct {
	Running             bool          `json:"running"`
	UpdateCount         int64         `json:"update_count"`
	LastUpdateDuration  time.Duration `json:"last_update_duration"`
	FirebaseWriteErrors int64         `json:"firebase_write_errors"`
}

// Producer runs the fail-safe poll-enrich-write loop: a panic or error
// inside one cycle never kills it, the next tick still fires.
type Producer struct {
	scoreboard  ScoreboardFetcher
	boxscore    BoxscoreFetcher
	baseline    BaselineLookup
	docs        store.Store
	broadcaster *shadowrace.Broadcaster
	interval    time.Duration

	mu           sync.RWMutex
	running      bool
	lastSnapshot []LiveGameState

	updateCount         int64
	firebaseWriteErrors int64
	lastDuration        int64 // nanoseconds, read/written atomically
	cycleCounter        int64
}

func NewProducer(scoreboard ScoreboardFetcher, boxscore BoxscoreFetcher, baseline BaselineLookup, docs store.Store, broadcaster *shadowrace.Broadcaster, interval time.Duration) *Producer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Producer{
		scoreboard:  scoreboard,
		boxscore:    boxscore,
		baseline:    baseline,
		docs:        docs,
		broadcaster: broadcaster,
		interval:    interval,
	}
}

// Run blocks until ctx is cancelled, firing one cycle per tick. A slow
// or panicking cycle still respects the configured cadence before the
// next attempt.
func (p *Producer) Run(ctx context.Context) {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.safeCycle(ctx)
		}
	}
}

// safeCycle wraps cycle() with a recover so an unexpected panic in an
// upstream fetcher never kills the background loop.
func (p *Producer) safeCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pulse: cycle panicked, continuing: %v", r)
			observability.PulseCycleFailures.WithLabelValues("panic").Inc()
		}
		dur := time.Since(start)
		atomic.StoreInt64(&p.lastDuration, int64(dur))
		observability.PulseCycleDuration.Observe(dur.Seconds())
	}()

	if err := p.cycle(ctx); err != nil {
		log.Printf("pulse: cycle error, continuing: %v", err)
		observability.PulseCycleFailures.WithLabelValues("cycle").Inc()
		return
	}
	atomic.AddInt64(&p.updateCount, 1)
}

func (p *Producer) cycle(ctx context.Context) error {
	games, err := p.scoreboard(ctx)
	if err != nil {
		return err
	}

	liveGames := make([]GameSummary, 0, len(games))
	for _, g := range games {
		if g.Status == "live" {
			liveGames = append(liveGames, g)
		}
	}
	observability.PulseGamesTracked.Set(float64(len(liveGames)))

	states := make([]LiveGameState, 0, len(liveGames))
	var statesMu sync.Mutex
	var wg sync.WaitGroup

	for _, g := range liveGames {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("pulse: boxscore fan-out panicked for game %s: %v", g.GameID, r)
					observability.PulseCycleFailures.WithLabelValues("boxscore").Inc()
				}
			}()

			box, err := p.boxscore(ctx, g.GameID)
			if err != nil {
				log.Printf("pulse: boxscore fetch failed for game %s: %v", g.GameID, err)
				observability.PulseCycleFailures.WithLabelValues("boxscore").Inc()
				return
			}

			state := p.assembleGameState(g, box)
			statesMu.Lock()
			states = append(states, state)
			statesMu.Unlock()

			p.writeGame(ctx, state)
		}()
	}
	wg.Wait()

	sort.Slice(states, func(i, j int) bool { return states[i].GameID < states[j].GameID })

	p.mu.Lock()
	p.lastSnapshot = states
	p.mu.Unlock()

	leaders := topLeaders(states, 15)
	p.writeLeaders(ctx, leaders)

	p.publish(states)
	return nil
}

func (p *Producer) assembleGameState(g GameSummary, box Boxscore) LiveGameState {
	margin := g.HomeScore - g.AwayScore
	combinedTotal := combinedGameTotal(box.Players)

	players := make([]PlayerMetrics, 0, len(box.Players))
	for _, stat := range box.Players {
		opponentDefRating := box.AwayTeam.OpponentDefRating
		if stat.TeamID == box.AwayTeam.TeamID {
			opponentDefRating = box.HomeTeam.OpponentDefRating
		}
		baseline := SeasonBaseline{}
		if p.baseline != nil {
			baseline = p.baseline(stat.PlayerID)
		}
		players = append(players, EnrichPlayer(stat, combinedTotal, box.ElapsedMinutes, opponentDefRating, g.Period, g.ClockSecondsRemaining, margin, baseline))
	}

	return LiveGameState{
		GameID:                g.GameID,
		Status:                g.Status,
		Period:                g.Period,
		ClockSecondsRemaining: g.ClockSecondsRemaining,
		HomeTeam:              g.HomeTeam,
		AwayTeam:              g.AwayTeam,
		HomeScore:             g.HomeScore,
		AwayScore:             g.AwayScore,
		GamePhase:             GamePhase(g.Period, g.ClockSecondsRemaining, margin),
		PaceMultiplier:        PaceMultiplier(box.HomeTeam.Pace, box.AwayTeam.Pace),
		Players:               players,
		UpdatedAt:             time.Now().UTC(),
	}
}

func combinedGameTotal(players []BoxscorePlayerStat) float64 {
	var total float64
	for _, pl := range players {
		total += float64(pl.Points + pl.Rebounds + pl.Assists + pl.Steals + pl.Blocks)
	}
	return total
}

func topLeaders(states []LiveGameState, n int) []PlayerMetrics {
	var all []PlayerMetrics
	for _, s := range states {
		all = append(all, s.Players...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PIE > all[j].PIE })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// writeGame and writeLeaders are fire-and-forget: failures increment a
// counter but never block or fail the cycle.
func (p *Producer) writeGame(ctx context.Context, state LiveGameState) {
	go func() {
		data, err := json.Marshal(state)
		if err != nil {
			atomic.AddInt64(&p.firebaseWriteErrors, 1)
			observability.PulseCycleFailures.WithLabelValues("marshal_game").Inc()
			return
		}
		if err := p.docs.PutDocument(ctx, store.CollectionLiveGames, state.GameID, data); err != nil {
			atomic.AddInt64(&p.firebaseWriteErrors, 1)
			observability.PulseCycleFailures.WithLabelValues("write_game").Inc()
		}
	}()
}

func (p *Producer) writeLeaders(ctx context.Context, leaders []PlayerMetrics) {
	go func() {
		data, err := json.Marshal(leaders)
		if err != nil {
			atomic.AddInt64(&p.firebaseWriteErrors, 1)
			observability.PulseCycleFailures.WithLabelValues("marshal_leaders").Inc()
			return
		}
		if err := p.docs.PutDocument(ctx, store.CollectionLiveLeaders, "current", data); err != nil {
			atomic.AddInt64(&p.firebaseWriteErrors, 1)
			observability.PulseCycleFailures.WithLabelValues("write_leaders").Inc()
		}
	}()
}

// publish bumps the cycle counter (read through CycleCounter) and pushes
// the snapshot to SSE listeners through the broadcaster. The SSE handler
// does not read the counter: it writes on each broadcaster event and
// sends heartbeats from its own timer when no event arrives.
func (p *Producer) publish(states []LiveGameState) {
	atomic.AddInt64(&p.cycleCounter, 1)
	if p.broadcaster != nil {
		p.broadcaster.Push("pulse", states)
	}
}

func (p *Producer) Snapshot() []LiveGameState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]LiveGameState, len(p.lastSnapshot))
	copy(out, p.lastSnapshot)
	return out
}

// LeaderBoard returns the top-n players by PIE across the latest snapshot.
func (p *Producer) LeaderBoard(n int) []PlayerMetrics {
	return topLeaders(p.Snapshot(), n)
}

func (p *Producer) CycleCounter() int64 {
	return atomic.LoadInt64(&p.cycleCounter)
}

func (p *Producer) GetStatus() Status {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	return Status{
		Running:             running,
		UpdateCount:         atomic.LoadInt64(&p.updateCount),
		LastUpdateDuration:  time.Duration(atomic.LoadInt64(&p.lastDuration)),
		FirebaseWriteErrors: atomic.LoadInt64(&p.firebaseWriteErrors),
	}
}
