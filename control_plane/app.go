package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/redis/go-redis/v9"

	"github.com/nexusvanguard/control-plane/control_plane/config"
	"github.com/nexusvanguard/control-plane/control_plane/coordination"
	"github.com/nexusvanguard/control-plane/control_plane/errs"
	"github.com/nexusvanguard/control-plane/control_plane/health"
	"github.com/nexusvanguard/control-plane/control_plane/idempotency"
	"github.com/nexusvanguard/control-plane/control_plane/pulse"
	"github.com/nexusvanguard/control-plane/control_plane/queue"
	"github.com/nexusvanguard/control-plane/control_plane/ratelimit"
	"github.com/nexusvanguard/control-plane/control_plane/registry"
	"github.com/nexusvanguard/control-plane/control_plane/shadowrace"
	"github.com/nexusvanguard/control-plane/control_plane/store"
	"github.com/nexusvanguard/control-plane/control_plane/streaming"
	"github.com/nexusvanguard/control-plane/control_plane/vanguard"
)

// Health Gate service names for the supervised dependencies.
const (
	depDocumentStore = "document_store"
	depCache         = "cache"
	depAITriage      = "ai_triage"
	depPulseProducer = "pulse_producer"
)

// App bundles every wired component the HTTP surface and background loops
// share, so handlers (split across handlers_*.go) can close over it
// without a global.
type App struct {
	cfg config.Config

	docs        store.Store
	coord       store.Coordinator
	redisClient *redis.Client

	registry *registry.Registry
	gate     *health.Gate

	limiter   *ratelimit.Limiter
	idemStore *idempotency.Store
	q         *queue.PriorityQueue
	breaker   *queue.CircuitBreaker

	race        *shadowrace.Race
	liveBcast   *shadowrace.Broadcaster
	healthBcast *shadowrace.Broadcaster

	vanguard   *vanguard.Engine
	triager    *vanguard.Triager
	escalator  *vanguard.Escalator
	routing    *vanguard.RoutingTable
	hysteresis *vanguard.HysteresisEvaluator
	ledger     *vanguard.LearningLedger
	errRing    *errs.Ring

	pulseProducer *pulse.Producer
	publisher     streaming.Publisher
	wsHub         *MetricsHub

	singleton *coordination.SingletonRunner
	janitor   *coordination.LeaseJanitor

	startedAt time.Time
}

func NewApp(cfg config.Config) (*App, error) {
	a := &App{cfg: cfg, startedAt: time.Now().UTC()}

	if err := a.wireStore(); err != nil {
		return nil, err
	}

	a.registry = registry.New()
	a.registerEndpoints()

	a.gate = health.NewGate()
	a.gate.Register(depDocumentStore, health.Core)
	a.gate.Register(depCache, health.Core)
	a.gate.Register(depAITriage, health.External)
	a.gate.Register(depPulseProducer, health.Component)

	a.limiter = ratelimit.New(a.redisClient, cfg.DefaultRateLimit, cfg.AdminRateLimit, cfg.DefaultRateWindow, cfg.AdminRateWindow)
	a.idemStore = idempotency.NewStore(a.docs, cfg.IdempotencyTTL)

	a.breaker = queue.NewCircuitBreaker(500)
	a.q = queue.New(a.breaker)

	a.liveBcast = shadowrace.NewBroadcaster()
	a.healthBcast = shadowrace.NewBroadcaster()
	a.race = shadowrace.NewRace(a.liveBcast)

	a.routing = vanguard.NewRoutingTable()
	a.ledger = vanguard.NewLearningLedger()
	a.ledger.SetPersist(a.persistLearningEntry)
	a.errRing = errs.NewRing(100)

	a.wireTriager()

	a.escalator = vanguard.NewEscalator(a.composeScore, a.onModeChange)
	switch cfg.VanguardMode {
	case string(vanguard.ModeSilentObserver), string(vanguard.ModeCircuitBreaker):
		a.escalator.ForceMode(vanguard.Mode(cfg.VanguardMode))
	}

	a.vanguard = &vanguard.Engine{
		Incidents:    vanguard.NewStore(),
		Registry:     a.registry,
		Routing:      a.routing,
		Triager:      a.triager,
		Queue:        a.q,
		Ledger:       a.ledger,
		Escalator:    a.escalator,
		SamplingRate: cfg.VanguardSamplingRate,
	}

	a.hysteresis = vanguard.NewHysteresisEvaluator(a.routing, "gemini_triage_path", a.probeAITriage, 30*time.Second, a.skipHysteresis)

	a.publisher = streaming.NewStorePublisher(a.docs)

	a.wirePulse()
	a.wireCoordination()

	if cfg.WebsocketEnabled {
		a.wsHub = NewMetricsHub(a.wsSnapshot)
	}

	return a, nil
}

// wsSnapshot is pushed to every connected dashboard socket once a second.
func (a *App) wsSnapshot() interface{} {
	incidentScore, subsystemScore, endpointErrorScore := a.composeScore()
	return map[string]interface{}{
		"mode":                 a.escalator.Mode(),
		"composite_score":      a.escalator.LastScore(),
		"incident_score":       incidentScore,
		"subsystem_score":      subsystemScore,
		"endpoint_error_score": endpointErrorScore,
		"active_incidents":     a.vanguard.Incidents.ActiveCount(),
	}
}

func (a *App) wireStore() error {
	switch a.cfg.VanguardStorageMode {
	case "memory":
		a.docs = store.NewMemoryStore()
		return nil
	case "postgres":
		// Durable documents and epochs live in Postgres; Redis still
		// carries coordination and the rate limiter when reachable.
		pg, err := store.NewPostgresStore(context.Background(), a.cfg.PostgresURL)
		if err != nil {
			return errs.Wrap(errs.DBDown, "failed to connect to postgres store", err)
		}
		a.docs = pg
		if rs, err := store.NewRedisStore(a.cfg.RedisURL, "", 0); err == nil {
			a.coord = rs
			a.redisClient = rs.Client()
		}
		return nil
	default:
		rs, err := store.NewRedisStore(a.cfg.RedisURL, "", 0)
		if err != nil {
			return errs.Wrap(errs.DBDown, "failed to connect to redis store", err)
		}
		a.docs = rs
		a.coord = rs
		a.redisClient = rs.Client()
		return nil
	}
}

func (a *App) wireTriager() {
	if !a.cfg.VanguardLLMEnabled {
		a.triager = vanguard.NewTriager(nil, a.cfg.VanguardLLMTimeout)
		return
	}
	client := anthropic.NewClient()
	a.triager = vanguard.NewTriager(&client, a.cfg.VanguardLLMTimeout)
}

func (a *App) wirePulse() {
	if !a.cfg.PulseServiceEnabled {
		return
	}
	a.pulseProducer = pulse.NewProducer(
		stubScoreboardFetcher,
		stubBoxscoreFetcher,
		a.seasonBaseline,
		a.docs,
		a.liveBcast,
		a.cfg.PulsePollInterval,
	)
}

func (a *App) wireCoordination() {
	if a.coord == nil {
		return
	}
	loops := []coordination.NamedLoop{
		{Name: "escalator", Run: a.escalator.Run},
		{Name: "hysteresis_evaluator", Run: a.hysteresis.Run},
	}
	if a.pulseProducer != nil {
		loops = append(loops, coordination.NamedLoop{Name: "pulse_producer", Run: a.pulseProducer.Run})
	}
	a.singleton = coordination.NewSingletonRunner(a.coord, a.docs, "node-"+nodeSuffix(), 30*time.Second, loops...)
	a.janitor = coordination.NewLeaseJanitor(a.coord, a.docs, 60*time.Second)
}

// Start launches every background loop. When a coordination backend is
// wired, the singleton runner owns the escalation/pulse/hysteresis loops
// so a multi-replica deployment has a single driver; standalone
// (memory-store) deployments run them unconditionally.
func (a *App) Start(ctx context.Context) {
	a.q.Start(ctx)

	if a.wsHub != nil {
		go a.wsHub.Run(ctx)
	}

	if a.singleton != nil {
		a.singleton.Start(ctx)
		a.janitor.Start(ctx)
		return
	}

	a.runStandaloneLoops(ctx)
}

func (a *App) runStandaloneLoops(ctx context.Context) {
	go a.escalator.Run(ctx)
	go a.hysteresis.Run(ctx)
	if a.pulseProducer != nil {
		go a.pulseProducer.Run(ctx)
	}
}

func (a *App) composeScore() (incident, subsystem, endpointError float64) {
	active := a.vanguard.Incidents.ActiveCount()
	red := 0
	for _, inc := range a.vanguard.Incidents.List(vanguard.StatusActive) {
		if inc.Severity == vanguard.SeverityRed {
			red++
		}
	}
	incident = vanguard.IncidentScore(active, red, a.vanguard.Incidents.ResolvedCount())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	subsystem = vanguard.SubsystemScore(a.subsystemStates(ctx))

	endpointError = vanguard.EndpointErrorScore(a.vanguard.Incidents.DistinctEndpointsWithActiveIncidents())
	return
}

// subsystemStates probes the six subsystems feeding the weighted rollup.
// The vaccine and surgeon probes run the real code paths on a synthetic
// incident, the same way the promotion gate probes heuristic triage; the
// store probes are live connectivity checks.
func (a *App) subsystemStates(ctx context.Context) map[string]bool {
	plan := vanguard.GeneratePlan(&vanguard.Incident{Fingerprint: "probe", Endpoint: "/vanguard/probe", ErrorType: "KeyError"}, nil, nil, "", 500, nil)
	action := vanguard.Decide(vanguard.ModeNormal, vanguard.IncidentAnalysis{Confidence: 75})

	return map[string]bool{
		vanguard.SubsystemRegistry: a.registry.Summary().Total > 0,
		vanguard.SubsystemStore:    a.pingDocStore(ctx),
		vanguard.SubsystemAI:       a.gate.IsServiceAvailable(depAITriage),
		vanguard.SubsystemVaccine:  len(plan.VerificationPlan) > 0,
		vanguard.SubsystemSurgeon:  action != "",
		vanguard.SubsystemKVStore:  a.pingCache(ctx),
	}
}

func (a *App) onModeChange(old, newMode vanguard.Mode, score float64) {
	a.healthBcast.Push("health", map[string]interface{}{
		"mode_transition": map[string]string{"from": string(old), "to": string(newMode)},
		"score":           score,
	})
	if a.publisher != nil {
		_ = a.publisher.Publish(context.Background(), "mode_transition", streaming.ActorEscalator, map[string]interface{}{
			"from":  string(old),
			"to":    string(newMode),
			"score": score,
		})
	}
}

func (a *App) probeAITriage(ctx context.Context) bool {
	return a.gate.IsServiceAvailable(depAITriage)
}

func (a *App) skipHysteresis() bool {
	return a.escalator.Mode() == vanguard.ModeCircuitBreaker
}

// persistLearningEntry mirrors a ledger entry into the document store,
// fire-and-forget: losing one audit write never fails the resolution that
// produced it.
func (a *App) persistLearningEntry(entry vanguard.LearningEntry) {
	go func() {
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		id := entry.RecordedAt.UTC().Format("20060102T150405.000000000")
		if err := a.docs.PutDocument(context.Background(), store.CollectionLearningLedger, id, data); err != nil {
			log.Printf("⚠️ learning ledger write failed: %v", err)
		}
	}()
}

func (a *App) seasonBaseline(playerID string) pulse.SeasonBaseline {
	data, found, err := a.docs.GetDocument(context.Background(), store.CollectionSeasonBaselines, playerID)
	if err != nil || !found {
		return pulse.SeasonBaseline{}
	}
	var baseline pulse.SeasonBaseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		return pulse.SeasonBaseline{}
	}
	return baseline
}

func (a *App) registerEndpoints() {
	a.registry.Register(registry.EndpointConfig{
		Path:           "/live/games",
		Category:       registry.CategoryData,
		Dependencies:   []string{depPulseProducer, depDocumentStore},
		BaseTimeout:    1500 * time.Millisecond,
		AdaptiveBuffer: 500 * time.Millisecond,
	})
	a.registry.Register(registry.EndpointConfig{
		Path:           "/live/leaders",
		Category:       registry.CategoryData,
		Dependencies:   []string{depPulseProducer, depDocumentStore},
		BaseTimeout:    1500 * time.Millisecond,
		AdaptiveBuffer: 500 * time.Millisecond,
	})
}

func nodeSuffix() string {
	return time.Now().UTC().Format("150405.000000000")
}

// liveStreamRouteCount matches the four routes mounted under the live
// pulse surface in routes.go (/live/games, /live/leaders, /live/status,
// /live/stream), the threshold promotion gate G8 checks against.
const liveStreamRouteCount = 4

func (a *App) pingCache(ctx context.Context) bool {
	if a.redisClient == nil {
		return false
	}
	return a.redisClient.Ping(ctx).Err() == nil
}

func (a *App) pingDocStore(ctx context.Context) bool {
	if a.docs == nil {
		return false
	}
	_, _, err := a.docs.GetDocument(ctx, store.CollectionVanguardMetadata, "global")
	return err == nil
}
