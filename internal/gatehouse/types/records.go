package types

type Person struct {
	ID         int64  `json:"id"`
	FullName   string `json:"full_name"`
	DocumentID string `json:"document_id"`
	Vehicle    string `json:"vehicle,omitempty"`
	Sector     string `json:"sector,omitempty"`
	Shift      string `json:"shift,omitempty"`
	Active     bool   `json:"active"`
}

type PersonRequest struct {
	FullName   string `json:"full_name"`
	DocumentID string `json:"document_id"`
	Vehicle    string `json:"vehicle,omitempty"`
	Sector     string `json:"sector,omitempty"`
	Shift      string `json:"shift,omitempty"`
}

type ActiveRequest struct {
	Active bool `json:"active"`
}

type Record struct {
	ID                int64  `json:"id"`
	PersonID          int64  `json:"person_id"`
	OperatorID        string `json:"operator_id"`
	Kind              string `json:"kind"`
	OccurredAt        string `json:"occurred_at"`
	ManualAt          string `json:"manual_at,omitempty"`
	EffectiveAt       string `json:"effective_at"`
	Justification     string `json:"justification,omitempty"`
	Note              string `json:"note,omitempty"`
	Flagged           bool   `json:"flagged"`
	Vehicle           string `json:"vehicle,omitempty"`
	Sector            string `json:"sector,omitempty"`
	ExitAt            string `json:"exit_at,omitempty"`
	ExitOperatorID    string `json:"exit_operator_id,omitempty"`
	ExitNote          string `json:"exit_note,omitempty"`
	ExitManual        bool   `json:"exit_manual,omitempty"`
	ExitJustification string `json:"exit_justification,omitempty"`
	PendingExit       bool   `json:"pending_exit"`
	Status            string `json:"revision_status"`
	Supersedes        *int64 `json:"supersedes,omitempty"`
	RevisedAt         string `json:"revised_at,omitempty"`
	RevisedBy         string `json:"revised_by,omitempty"`
}

type BoardEntry struct {
	ID             int64  `json:"id"`
	CycleID        string `json:"cycle_id"`
	HistoryID      int64  `json:"history_id"`
	PersonID       int64  `json:"person_id"`
	OperatorID     string `json:"operator_id"`
	Kind           string `json:"kind"`
	EffectiveAt    string `json:"effective_at"`
	Note           string `json:"note,omitempty"`
	Flagged        bool   `json:"flagged"`
	Vehicle        string `json:"vehicle,omitempty"`
	Sector         string `json:"sector,omitempty"`
	ExitAt         string `json:"exit_at,omitempty"`
	ExitOperatorID string `json:"exit_operator_id,omitempty"`
	PendingExit    bool   `json:"pending_exit"`
}

type Cycle struct {
	ID       string `json:"id"`
	Open     bool   `json:"open"`
	OpenedAt string `json:"opened_at"`
	OpenedBy string `json:"opened_by"`
	ClosedAt string `json:"closed_at,omitempty"`
	ClosedBy string `json:"closed_by,omitempty"`
}

type AuditEntry struct {
	ID         int64  `json:"id"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
	At         string `json:"at"`
}

type HistoryRow struct {
	Record     Record `json:"record"`
	Shift      string `json:"shift"`
	PersonName string `json:"person_name"`
	DocumentID string `json:"document_id"`
}

type HistoryResponse struct {
	Rows    []HistoryRow `json:"rows"`
	Skipped int          `json:"skipped"`
}
