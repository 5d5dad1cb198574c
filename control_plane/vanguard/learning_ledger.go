// Learning ledger: an append-only log of fix/resolution records, written
// whenever an operator resolves incidents, with a read-only export for
// the admin surface.
package vanguard

import (
	"strconv"
	"sync"
	"time"
)

type LearningEntry struct {
	IncidentPattern    string    `json:"incident_pattern"` // "<endpoint> <http_status> <error_type>"
	FixDescription     string    `json:"fix_description"`
	FixFiles           []string  `json:"fix_files"`
	DeployedRevision   string    `json:"deployed_revision"`
	IncidentsBefore    int       `json:"incidents_before"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// LearningLedger keeps the in-process append-only log and, when a
// persist hook is set, mirrors every entry into the document store's
// vanguard_learning_ledger collection.
type LearningLedger struct {
	mu      sync.Mutex
	entries []LearningEntry
	persist func(LearningEntry)
}

func NewLearningLedger() *LearningLedger {
	return &LearningLedger{}
}

// SetPersist installs the document-store mirror. The hook is invoked
// outside the ledger lock and must be fire-and-forget.
func (l *LearningLedger) SetPersist(fn func(LearningEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.persist = fn
}

func (l *LearningLedger) RecordFix(incidentPattern, fixDescription string, fixFiles []string, deployedRevision string, incidentsBefore int) {
	entry := LearningEntry{
		IncidentPattern:  incidentPattern,
		FixDescription:   fixDescription,
		FixFiles:         fixFiles,
		DeployedRevision: deployedRevision,
		IncidentsBefore:  incidentsBefore,
		RecordedAt:       time.Now().UTC(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	persist := l.persist
	l.mu.Unlock()

	if persist != nil {
		persist(entry)
	}
}

// Export returns the full ledger, newest first, for the read-only
// /vanguard/admin/learning-ledger endpoint.
func (l *LearningLedger) Export() []LearningEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LearningEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// BulkResolveResult reports resolved/learned/failed counts plus
// per-failure reasons.
type BulkResolveResult struct {
	ResolvedCount int                 `json:"resolved_count"`
	LearnedCount  int                 `json:"learned_count"`
	FailedCount   int                 `json:"failed_count"`
	Failed        []BulkResolveFailure `json:"failed"`
}

type BulkResolveFailure struct {
	Fingerprint string `json:"fingerprint"`
	Reason      string `json:"reason"`
}

// BulkResolve resolves every named incident, recording a learning entry
// for each one that existed before resolving it (a fix is still worth
// learning from even if the subsequent resolve call somehow fails).
func BulkResolve(store *Store, ledger *LearningLedger, fingerprints []string, resolutionNotes string) BulkResolveResult {
	result := BulkResolveResult{}
	if resolutionNotes == "" {
		resolutionNotes = "Batch resolution"
	}

	for _, fp := range fingerprints {
		inc, ok := store.Get(fp)
		if !ok {
			result.Failed = append(result.Failed, BulkResolveFailure{Fingerprint: fp, Reason: "not_found"})
			result.FailedCount++
			continue
		}

		pattern := inc.Endpoint + " " + strconv.Itoa(httpStatusOf(inc)) + " " + inc.ErrorType
		ledger.RecordFix(pattern, resolutionNotes, []string{"bulk_operation"}, "bulk_resolve", inc.OccurrenceCount)
		result.LearnedCount++

		if _, resolved := store.Resolve(fp, resolutionNotes); resolved {
			result.ResolvedCount++
		} else {
			result.Failed = append(result.Failed, BulkResolveFailure{Fingerprint: fp, Reason: "resolve_failed"})
			result.FailedCount++
		}
	}

	return result
}

// httpStatusOf reads the originating HTTP status out of ContextVector,
// where capture stashes it; Incident has no first-class field for it.
func httpStatusOf(inc *Incident) int {
	if inc.ContextVector == nil {
		return 0
	}
	n, err := strconv.Atoi(inc.ContextVector["http_status"])
	if err != nil {
		return 0
	}
	return n
}
