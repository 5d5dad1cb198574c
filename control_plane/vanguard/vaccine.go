// Vaccine plan engine: for an active incident, derive a structured
// remediation plan — root-cause bucket, ranked fix candidates,
// verification and rollback steps, and a risk score.
package vanguard

import (
	"strconv"
	"strings"
)

// AllowedRoots are the only path prefixes that may host a fix candidate.
var AllowedRoots = []string{"vanguard/", "backend/vanguard/", "scripts/", "shared_core/"}

func IsAllowedPath(path string) bool {
	for _, root := range AllowedRoots {
		if strings.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

// RootCauseBuckets maps both exception type names and HTTP status codes
// (as strings, e.g. "404") to a root-cause bucket.
var RootCauseBuckets = map[string]string{
	"ImportError":         "missing_dependency",
	"ModuleNotFoundError":  "missing_dependency",
	"AttributeError":       "api_contract_drift",
	"KeyError":             "schema_drift",
	"JSONDecodeError":      "schema_drift",
	"TypeError":            "type_mismatch",
	"ValueError":           "invalid_input",
	"FileNotFoundError":    "missing_resource",
	"ConnectionError":      "network_failure",
	"TimeoutError":         "network_failure",
	"RuntimeError":         "runtime_assertion",
	"PermissionError":      "iam_or_acl",
	"RecursionError":       "infinite_loop",
	"ZeroDivisionError":    "numeric_edge_case",
	"OverflowError":        "numeric_edge_case",
	"UnicodeDecodeError":   "encoding_drift",
	"StopIteration":        "iterator_exhausted",

	"404": "missing_route",
	"400": "validation_failure",
	"422": "validation_failure",
	"500": "internal_error",
	"429": "rate_limit",
	"503": "service_unavailable",
}

// HighRiskBuckets carry an extra risk premium in CalculateRisk.
var HighRiskBuckets = map[string]bool{
	"infinite_loop":      true,
	"iam_or_acl":         true,
	"runtime_assertion":  true,
}

func RootCauseBucket(exceptionType string, httpStatus int) string {
	if bucket, ok := RootCauseBuckets[exceptionType]; ok {
		return bucket
	}
	if httpStatus != 0 {
		if bucket, ok := RootCauseBuckets[strconv.Itoa(httpStatus)]; ok {
			return bucket
		}
	}
	return "unknown"
}

type FixCandidate struct {
	File       string
	Line       int
	Function   string
	Confidence float64
	Source     string // stacktrace | ai_analysis | endpoint_map
}

type VaccinePlan struct {
	Fingerprint           string
	RootCauseBucket       string
	FixCandidates         []FixCandidate
	VerificationPlan      []string
	RollbackPlan          []string
	RiskScore             float64
	RequiresHumanApproval bool
}

// ExtractCandidates ranks up to 5 fix candidates: stacktrace frames
// (innermost-first, confidence 0.8) then AI-analysis code references then
// an endpoint->file fallback (confidence 0.4), filtering to AllowedRoots.
func ExtractCandidates(frames []StackFrame, aiRefs []string, endpointFile string) []FixCandidate {
	var out []FixCandidate
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if IsAllowedPath(f.File) {
			out = append(out, FixCandidate{File: f.File, Line: f.Line, Function: f.Function, Confidence: 0.8, Source: "stacktrace"})
		}
	}
	for _, ref := range aiRefs {
		if IsAllowedPath(ref) {
			out = append(out, FixCandidate{File: ref, Confidence: 1.0, Source: "ai_analysis"})
		}
	}
	if endpointFile != "" && IsAllowedPath(endpointFile) {
		out = append(out, FixCandidate{File: endpointFile, Confidence: 0.4, Source: "endpoint_map"})
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// CalculateRisk scores a plan: baseline 0.3, +0.2 RED severity,
// +max(0, 0.4-avg_confidence), +0.15 unknown root cause, +0.20 high-risk
// bucket, +0.15 core files implicated, clamped to [0,1].
func CalculateRisk(severity Severity, rootCause string, candidates []FixCandidate) float64 {
	risk := 0.3
	if severity == SeverityRed {
		risk += 0.2
	}

	avgConfidence := 0.0
	if len(candidates) > 0 {
		sum := 0.0
		for _, c := range candidates {
			sum += c.Confidence
		}
		avgConfidence = sum / float64(len(candidates))
	}
	if deficit := 0.4 - avgConfidence; deficit > 0 {
		risk += deficit
	}

	if rootCause == "unknown" {
		risk += 0.15
	}
	if HighRiskBuckets[rootCause] {
		risk += 0.20
	}

	for _, c := range candidates {
		if strings.Contains(c.File, "main.go") || strings.Contains(c.File, "config.go") {
			risk += 0.15
			break
		}
	}

	if risk > 1.0 {
		risk = 1.0
	}
	return risk
}

// BuildVerificationPlan and BuildRollbackPlan are the standard staged
// sequences: syntax check, smoke request, regression script, subsystem
// smokes when implicated; staged-diff inspection plus revert commands.
func BuildVerificationPlan(endpoint string, implicatedSubsystems []string) []string {
	plan := []string{"syntax_check", "endpoint_smoke_request:" + endpoint, "regression_script"}
	for _, s := range implicatedSubsystems {
		plan = append(plan, "subsystem_smoke:"+s)
	}
	return plan
}

func BuildRollbackPlan() []string {
	return []string{"inspect_staged_diff", "git revert <commit>", "redeploy_previous_revision"}
}

// GeneratePlan orchestrates the full pipeline for one incident.
func GeneratePlan(inc *Incident, frames []StackFrame, aiRefs []string, endpointFile string, httpStatus int, implicatedSubsystems []string) VaccinePlan {
	bucket := RootCauseBucket(inc.ErrorType, httpStatus)
	candidates := ExtractCandidates(frames, aiRefs, endpointFile)
	risk := CalculateRisk(inc.Severity, bucket, candidates)

	return VaccinePlan{
		Fingerprint:           inc.Fingerprint,
		RootCauseBucket:       bucket,
		FixCandidates:         candidates,
		VerificationPlan:      BuildVerificationPlan(inc.Endpoint, implicatedSubsystems),
		RollbackPlan:          BuildRollbackPlan(),
		RiskScore:             risk,
		RequiresHumanApproval: true,
	}
}
