// Triage pipeline: AI-primary with an anti-hallucination
// prompt, heuristic fallback when the routing table has activated fallback
// or the AI call fails/times out. The AI dependency is wrapped in
// sony/gobreaker, a deliberately distinct breaker from the queue package's
// admission breaker (see DESIGN.md).
package vanguard

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sony/gobreaker"
)

type IncidentAnalysis struct {
	RootCause      string    `json:"root_cause"`
	Impact         string    `json:"impact"`
	RecommendedFix []string  `json:"recommended_fix"`
	ReadyToResolve bool      `json:"ready_to_resolve"`
	Confidence     int       `json:"confidence"`
	ModelID        string    `json:"model_id"`
	PromptVersion  string    `json:"prompt_version"`
	ExpiresAt      time.Time `json:"expires_at"`
}

const analysisTTL = 24 * time.Hour

// heuristicRule is one row of the fallback rule table.
type heuristicRule struct {
	errorType  string
	messageSub string // substring match against error message; empty = any
	rootCause  string
	confidence int
}

var heuristicRules = []heuristicRule{
	{errorType: "KeyError", rootCause: "schema drift", confidence: 55},
	{errorType: "FailedPrecondition", messageSub: "index", rootCause: "missing composite index", confidence: 75},
	{errorType: "DeadlineExceeded", rootCause: "dependency timeout", confidence: 65},
	{errorType: "ImportError", rootCause: "missing dependency", confidence: 80},
	{errorType: "ModuleNotFoundError", rootCause: "missing dependency", confidence: 80},
	{errorType: "PermissionDenied", rootCause: "insufficient permissions", confidence: 70},
	{errorType: "MemoryError", rootCause: "memory exhaustion", confidence: 70},
}

// knownLiveDataHosts are connection targets whose failures get a floor
// confidence of 60.
var knownLiveDataHosts = []string{"stats.nba.com", "data.nba.net"}

// HeuristicTriage is the fallback path: a fixed rule table over
// (error type, message substring).
func HeuristicTriage(errorType, message string) IncidentAnalysis {
	lowerMsg := strings.ToLower(message)

	if strings.Contains(lowerMsg, "timeout") {
		return heuristicResult("dependency timeout", 65, []string{"increase timeout budget", "check dependency health"})
	}
	for _, host := range knownLiveDataHosts {
		if strings.Contains(lowerMsg, host) {
			return heuristicResult("live-data host connectivity", 60, []string{"verify upstream availability", "enter cooldown"})
		}
	}
	for _, rule := range heuristicRules {
		if rule.errorType != errorType {
			continue
		}
		if rule.messageSub != "" && !strings.Contains(lowerMsg, rule.messageSub) {
			continue
		}
		return heuristicResult(rule.rootCause, rule.confidence, []string{"review " + rule.rootCause})
	}

	return heuristicResult("no heuristic pattern matched", 30, []string{"manual investigation required"})
}

func heuristicResult(rootCause string, confidence int, fixes []string) IncidentAnalysis {
	return IncidentAnalysis{
		RootCause:      rootCause,
		RecommendedFix: fixes,
		Confidence:     confidence,
		ModelID:        "heuristic-engine",
		PromptVersion:  "heuristic-1.0",
		ExpiresAt:      time.Now().UTC().Add(analysisTTL),
	}
}

// Triager invokes the LLM primary path, falling back to heuristics on
// breaker-open, timeout, or invalid-schema response.
type Triager struct {
	client  *anthropic.Client
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewTriager(client *anthropic.Client, timeout time.Duration) *Triager {
	settings := gobreaker.Settings{
		Name:    "ai-triage",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Triager{client: client, breaker: gobreaker.NewCircuitBreaker(settings), timeout: timeout}
}

// Triage selects primary (AI) or fallback (heuristic) per the routing
// table's fallback_active flag. The caller passes the
// already-evaluated routing decision so this function stays pure of the
// routing table's own locking.
func (t *Triager) Triage(ctx context.Context, inc *Incident, fallbackActive bool, promptContext string) (IncidentAnalysis, string) {
	if fallbackActive || t.client == nil {
		return HeuristicTriage(inc.ErrorType, inc.ErrorMessage), "heuristic"
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := t.breaker.Execute(func() (interface{}, error) {
		return t.invokeLLM(ctx, inc, promptContext)
	})
	if err != nil {
		return HeuristicTriage(inc.ErrorType, inc.ErrorMessage), "heuristic"
	}

	analysis, ok := result.(IncidentAnalysis)
	if !ok || !validAnalysis(analysis) {
		return HeuristicTriage(inc.ErrorType, inc.ErrorMessage), "heuristic"
	}
	return analysis, "ai"
}

func validAnalysis(a IncidentAnalysis) bool {
	return a.RootCause != "" && a.Confidence >= 0 && a.Confidence <= 100
}

// invokeLLM assembles the anti-hallucination prompt (incident fields plus
// the caller's promptContext) and validates the strict JSON response
// against the IncidentAnalysis schema. It does not gather endpoint source
// excerpts or commit summaries itself.
func (t *Triager) invokeLLM(ctx context.Context, inc *Incident, promptContext string) (IncidentAnalysis, error) {
	prompt := buildTriagePrompt(inc, promptContext)

	msg, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.ModelClaude3_5SonnetLatest,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return IncidentAnalysis{}, err
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return parseAnalysisJSON(text, inc)
}

// parseAnalysisJSON decodes the model's strict-JSON reply and stamps the
// fields that are derived rather than model-authored (model id, prompt
// version, expiry).
func parseAnalysisJSON(text string, inc *Incident) (IncidentAnalysis, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return IncidentAnalysis{}, fmt.Errorf("triage: no JSON object in model response")
	}

	var raw struct {
		RootCause      string   `json:"root_cause"`
		Impact         string   `json:"impact"`
		RecommendedFix []string `json:"recommended_fix"`
		ReadyToResolve bool     `json:"ready_to_resolve"`
		Confidence     int      `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return IncidentAnalysis{}, fmt.Errorf("triage: invalid analysis schema: %w", err)
	}
	if raw.RootCause == "" {
		return IncidentAnalysis{}, fmt.Errorf("triage: empty root_cause in model response")
	}

	return IncidentAnalysis{
		RootCause:      raw.RootCause,
		Impact:         raw.Impact,
		RecommendedFix: raw.RecommendedFix,
		ReadyToResolve: raw.ReadyToResolve,
		Confidence:     raw.Confidence,
		ModelID:        "claude-3-5-sonnet",
		PromptVersion:  "ai-triage-1.0",
		ExpiresAt:      time.Now().UTC().Add(analysisTTL),
	}, nil
}

func buildTriagePrompt(inc *Incident, sourceContext string) string {
	var b strings.Builder
	b.WriteString("You are triaging a production incident. Respond with strict JSON matching the IncidentAnalysis schema only.\n")
	b.WriteString("fingerprint: " + inc.Fingerprint + "\n")
	b.WriteString("endpoint: " + inc.Endpoint + "\n")
	b.WriteString("error_type: " + inc.ErrorType + "\n")
	b.WriteString("error_message: " + inc.ErrorMessage + "\n")
	b.WriteString("occurrence_count: " + strconv.Itoa(inc.OccurrenceCount) + "\n")
	b.WriteString("severity: " + string(inc.Severity) + "\n")
	// sourceContext is written as given, with no size bound applied here.
	// The current callers of Triage pass an empty string, so no source
	// excerpts reach the prompt.
	b.WriteString("source_context:\n" + sourceContext + "\n")
	return b.String()
}
