// Remediation decision function: given an incident, its analysis, and
// the current operating mode, select exactly one remediation action.
package vanguard

import "time"

type Action string

const (
	ActionLogOnly   Action = "LOG_ONLY"
	ActionMonitor   Action = "MONITOR"
	ActionRateLimit Action = "RATE_LIMIT"
	ActionQuarantine Action = "QUARANTINE"
)

type Mode string

const (
	ModeNormal         Mode = "NORMAL"
	ModeSilentObserver Mode = "SILENT_OBSERVER"
	ModeCircuitBreaker Mode = "CIRCUIT_BREAKER"
)

// Decide maps (mode, confidence, readiness) to an action.
// SILENT_OBSERVER always yields LOG_ONLY regardless of confidence, since
// that mode exists precisely to stop the surgeon from taking action while
// the team investigates a bad actuation. Unknown modes degrade to
// LOG_ONLY, the safest action.
func Decide(mode Mode, analysis IncidentAnalysis) Action {
	switch mode {
	case ModeSilentObserver:
		return ActionLogOnly
	case ModeNormal, ModeCircuitBreaker:
		return decideByConfidence(analysis)
	default:
		return ActionLogOnly
	}
}

func decideByConfidence(analysis IncidentAnalysis) Action {
	switch {
	case analysis.ReadyToResolve && analysis.Confidence >= 85:
		return ActionMonitor
	case analysis.Confidence >= 85:
		return ActionRateLimit
	case analysis.Confidence >= 70:
		return ActionRateLimit
	default:
		return ActionQuarantine
	}
}

// BuildRemediation packages a decision into a log entry ready for
// Store.AppendRemediation.
func BuildRemediation(mode Mode, analysis IncidentAnalysis, reason string) RemediationEntry {
	return RemediationEntry{
		Action:     Decide(mode, analysis),
		Reason:     reason,
		Confidence: analysis.Confidence,
		Mode:       mode,
		Timestamp:  time.Now().UTC(),
	}
}
