// Package errs implements the unified structured error taxonomy used across
// every Nexus-Vanguard component: a typed error carrying structured fields
// instead of an opaque string.
package errs

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Code is drawn from the closed taxonomy organized by HTTP class.
type Code string

const (
	// 400s
	MissingParam  Code = "MISSING_PARAM"
	InvalidParam  Code = "INVALID_PARAM"
	InvalidPlayer Code = "INVALID_PLAYER_ID"
	InvalidTeam   Code = "INVALID_TEAM_ID"
	InvalidSeason Code = "INVALID_SEASON"
	InvalidGame   Code = "INVALID_GAME_ID"

	// 401 / 403
	AuthRequired  Code = "AUTH_REQUIRED"
	InvalidAPIKey Code = "INVALID_API_KEY"
	AdminRequired Code = "ADMIN_REQUIRED"

	// 404
	PlayerNotFound Code = "PLAYER_NOT_FOUND"
	TeamNotFound   Code = "TEAM_NOT_FOUND"
	GameNotFound   Code = "GAME_NOT_FOUND"
	StatsNotFound  Code = "STATS_NOT_FOUND"
	SeasonNotFound Code = "SEASON_NOT_FOUND"
	EndpointNotFound Code = "ENDPOINT_NOT_FOUND"
	CacheNotFound  Code = "CACHE_NOT_FOUND"

	// 429
	NBARateLimited      Code = "NBA_API_RATE_LIMITED"
	AIRateLimited       Code = "AI_RATE_LIMITED"
	InternalRateLimited Code = "INTERNAL_RATE_LIMITED"

	// 500
	DatabaseError      Code = "DATABASE_ERROR"
	CalculationError   Code = "CALCULATION_ERROR"
	SerializationError Code = "SERIALIZATION_ERROR"
	ConfigurationError Code = "CONFIGURATION_ERROR"
	UnknownError       Code = "UNKNOWN_ERROR"

	// 502
	ExternalAPIError Code = "EXTERNAL_API_ERROR"
	UpstreamError    Code = "UPSTREAM_ERROR"

	// 503
	RouterDown      Code = "ROUTER_DOWN"
	EngineDown      Code = "ENGINE_DOWN"
	MatchupDown     Code = "MATCHUP_DOWN"
	EnrichmentDown  Code = "ENRICHMENT_DOWN"
	NBADown         Code = "NBA_DOWN"
	AIDown          Code = "AI_DOWN"
	DBDown          Code = "DB_DOWN"
	GenericDown     Code = "SERVICE_DOWN"

	// 504
	NBATimeout        Code = "NBA_API_TIMEOUT"
	AITimeout         Code = "AI_TIMEOUT"
	SimulationTimeout Code = "SIMULATION_TIMEOUT"
	DatabaseTimeout   Code = "DATABASE_TIMEOUT"
)

// httpStatus maps each code to its HTTP class. Codes not listed default to 500.
var httpStatus = map[Code]int{
	MissingParam: 400, InvalidParam: 400, InvalidPlayer: 400, InvalidTeam: 400,
	InvalidSeason: 400, InvalidGame: 400,
	AuthRequired: 401, InvalidAPIKey: 401,
	AdminRequired: 403,
	PlayerNotFound: 404, TeamNotFound: 404, GameNotFound: 404, StatsNotFound: 404,
	SeasonNotFound: 404, EndpointNotFound: 404, CacheNotFound: 404,
	NBARateLimited: 429, AIRateLimited: 429, InternalRateLimited: 429,
	DatabaseError: 500, CalculationError: 500, SerializationError: 500,
	ConfigurationError: 500, UnknownError: 500,
	ExternalAPIError: 502, UpstreamError: 502,
	RouterDown: 503, EngineDown: 503, MatchupDown: 503, EnrichmentDown: 503,
	NBADown: 503, AIDown: 503, DBDown: 503, GenericDown: 503,
	NBATimeout: 504, AITimeout: 504, SimulationTimeout: 504, DatabaseTimeout: 504,
}

// HTTPStatus returns the response status for a code, defaulting to 500 for
// unregistered codes (treated as UNKNOWN_ERROR at the boundary).
func HTTPStatus(c Code) int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// VanguardError is the single structured error type carried across the core.
type VanguardError struct {
	Code             Code                   `json:"code"`
	Message          string                 `json:"message"`
	Endpoint         string                 `json:"endpoint,omitempty"`
	HTTPStatus       int                    `json:"http_status"`
	Details          map[string]interface{} `json:"details,omitempty"`
	RecoveryAction   string                 `json:"recovery_action,omitempty"`
	FallbackAvailable bool                  `json:"fallback_available"`
	CooldownSeconds  int                    `json:"cooldown_seconds,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	wrapped          error
}

func (e *VanguardError) Error() string {
	return fmt.Sprintf("%s: %s (endpoint=%s, status=%d)", e.Code, e.Message, e.Endpoint, e.HTTPStatus)
}

func (e *VanguardError) Unwrap() error { return e.wrapped }

// New builds a VanguardError, computing HTTPStatus from the code table unless
// explicitly overridden by WithStatus.
func New(code Code, message string) *VanguardError {
	return &VanguardError{
		Code:       code,
		Message:    message,
		HTTPStatus: HTTPStatus(code),
		Timestamp:  time.Now().UTC(),
	}
}

// Wrap attaches an underlying error for %w-style unwrapping while keeping the
// structured shape at the boundary.
func Wrap(code Code, message string, err error) *VanguardError {
	ve := New(code, message)
	ve.wrapped = err
	return ve
}

func (e *VanguardError) WithEndpoint(path string) *VanguardError {
	e.Endpoint = path
	return e
}

func (e *VanguardError) WithFallback(available bool) *VanguardError {
	e.FallbackAvailable = available
	return e
}

func (e *VanguardError) WithCooldown(seconds int) *VanguardError {
	e.CooldownSeconds = seconds
	return e
}

func (e *VanguardError) WithRecovery(action string) *VanguardError {
	e.RecoveryAction = action
	return e
}

func (e *VanguardError) WithDetail(key string, value interface{}) *VanguardError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Ring is a bounded ring buffer of the last N errors plus per-code
// counters, exposed at /vanguard/admin/stats.
type Ring struct {
	mu       sync.Mutex
	capacity int
	entries  []*VanguardError
	counts   map[Code]int64
}

func NewRing(capacity int) *Ring {
	return &Ring{capacity: capacity, counts: make(map[Code]int64)}
}

func (r *Ring) Record(e *VanguardError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
	r.counts[e.Code]++
}

func (r *Ring) Snapshot() ([]*VanguardError, map[Code]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]*VanguardError, len(r.entries))
	copy(entries, r.entries)
	counts := make(map[Code]int64, len(r.counts))
	for k, v := range r.counts {
		counts[k] = v
	}
	return entries, counts
}
