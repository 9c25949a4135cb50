package types

// Timestamps on the wire are RFC 3339 strings.

type EntryRequest struct {
	PersonID int64  `json:"person_id"`
	Note     string `json:"note,omitempty"`
	Flagged  bool   `json:"flagged,omitempty"`
	Vehicle  string `json:"vehicle,omitempty"`
	Sector   string `json:"sector,omitempty"`
}

type ExitRequest struct {
	PersonID int64  `json:"person_id"`
	Note     string `json:"note,omitempty"`
}

type ManualRequest struct {
	PersonID      int64  `json:"person_id"`
	Kind          string `json:"kind"` // ENTRY | EXIT
	At            string `json:"at"`
	Justification string `json:"justification"`
	Note          string `json:"note,omitempty"`
	Flagged       bool   `json:"flagged,omitempty"`
	Vehicle       string `json:"vehicle,omitempty"`
	Sector        string `json:"sector,omitempty"`
}

type DefinitiveExitRequest struct {
	Name          string `json:"name"`
	DocumentID    string `json:"document_id"`
	Justification string `json:"justification"`
	Note          string `json:"note,omitempty"`
	Sector        string `json:"sector,omitempty"`
}

// EditRequest overlays the named fields; absent fields keep their value.
type EditRequest struct {
	Justification string  `json:"justification"`
	Kind          *string `json:"kind,omitempty"`
	ManualAt      *string `json:"manual_at,omitempty"`
	Note          *string `json:"note,omitempty"`
	Flagged       *bool   `json:"flagged,omitempty"`
	Vehicle       *string `json:"vehicle,omitempty"`
	Sector        *string `json:"sector,omitempty"`
	ExitAt        *string `json:"exit_at,omitempty"`
	ExitNote      *string `json:"exit_note,omitempty"`
}

type DeleteRequest struct {
	Justification string `json:"justification"`
}

type ClearBoardRequest struct {
	Secret string `json:"secret"`
}

type TransitionResponse struct {
	Record Record     `json:"record"`
	Board  BoardEntry `json:"board"`
	Person Person     `json:"person"`
}

type ClearBoardResponse struct {
	ClosedCycle Cycle  `json:"closed_cycle"`
	OpenedCycle Cycle  `json:"opened_cycle"`
	Removed     int64  `json:"removed"`
	Kept        int    `json:"kept"`
	AuditID     int64  `json:"audit_id"`
	Detail      string `json:"detail"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
