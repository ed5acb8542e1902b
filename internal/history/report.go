package history

import (
	"fmt"
	"time"
)

// OutcomeCount tallies successes and failures.
type OutcomeCount struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// FailureRecord summarizes one recent failed operation.
type FailureRecord struct {
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
	Error     string `json:"error"`
	User      string `json:"user"`
}

// Report is a security audit summary over the ledger.
type Report struct {
	Generated      time.Time               `json:"report_generated"`
	Summary        OutcomeCount            `json:"summary"`
	SuccessRate    string                  `json:"success_rate"`
	ByUser         map[string]OutcomeCount `json:"user_statistics"`
	ByOperation    map[string]OutcomeCount `json:"operation_statistics"`
	RecentFailures []FailureRecord         `json:"recent_failures"`
	HistoryFile    string                  `json:"history_file"`
}

// AuditReport aggregates the ledger into per-user and per-operation
// statistics plus the most recent failures.
func (l *Ledger) AuditReport() (Report, error) {
	l.mu.Lock()
	entries := l.load()
	l.mu.Unlock()

	r := Report{
		Generated:   time.Now().UTC(),
		ByUser:      make(map[string]OutcomeCount),
		ByOperation: make(map[string]OutcomeCount),
		HistoryFile: l.path,
	}
	for _, e := range entries {
		r.Summary.Total++
		user := fmt.Sprintf("%d", e.UserID)
		uc := r.ByUser[user]
		oc := r.ByOperation[string(e.OperationType)]
		uc.Total++
		oc.Total++
		if e.Success {
			r.Summary.Success++
			uc.Success++
			oc.Success++
		} else {
			r.Summary.Failed++
			uc.Failed++
			oc.Failed++
		}
		r.ByUser[user] = uc
		r.ByOperation[string(e.OperationType)] = oc
	}
	if r.Summary.Total > 0 {
		r.SuccessRate = fmt.Sprintf("%.1f%%", float64(r.Summary.Success)/float64(r.Summary.Total)*100)
	} else {
		r.SuccessRate = "n/a"
	}

	// The ten most recent entries, failures only.
	limit := 10
	if len(entries) < limit {
		limit = len(entries)
	}
	for _, e := range entries[:limit] {
		if e.Success {
			continue
		}
		msg := e.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		r.RecentFailures = append(r.RecentFailures, FailureRecord{
			Timestamp: e.Timestamp.Format("2006-01-02 15:04:05"),
			Command:   e.Command,
			Error:     msg,
			User:      fmt.Sprintf("%d", e.UserID),
		})
	}
	return r, nil
}
