package types

type ReportRow struct {
	Ordinal    int    `json:"ordinal"`
	PersonID   int64  `json:"person_id"`
	Name       string `json:"name"`
	DocumentID string `json:"document_id"`
	Sector     string `json:"sector,omitempty"`
	EntryAt    string `json:"entry_at,omitempty"`
	Note       string `json:"note,omitempty"`
}

type Report struct {
	Kind    string      `json:"kind"`
	Shift   string      `json:"shift"`
	Day     string      `json:"day"` // YYYY-MM-DD
	Rows    []ReportRow `json:"rows"`
	Skipped int         `json:"skipped"`
}

type ShiftWindow struct {
	Name       string `json:"name"`
	Index      int    `json:"index"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
	ServerTime string `json:"server_time"`
}
