package types

// RowStatus is the outcome of one spreadsheet row.
type RowStatus string

const (
	StatusSent    RowStatus = "sent"
	StatusSkipped RowStatus = "skipped"
	StatusError   RowStatus = "error"
)

// BatchRequest is the immutable input of one bulk send.
type BatchRequest struct {
	File            []byte // raw upload
	Filename        string // only its extension is used, to pick the parser
	SubjectTemplate string
	BodyTemplate    string
	EmailColumn     string // defaults to "email"
	Disposition     string // optional, written to cf_choose_your_inquiry
	ExtraFieldsJSON string // optional JSON object merged into custom fields
}

// RowResult is created once per processed row and never changed after.
type RowResult struct {
	Row         int       `json:"row"`
	Email       string    `json:"email,omitempty"`
	Status      RowStatus `json:"status"`
	TicketID    *int64    `json:"ticket_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	RateLimited bool      `json:"rate_limited,omitempty"`
}

// BatchReport is returned when a batch ends, by exhaustion or early abort.
// Total counts every data row of the file, processed or not.
type BatchReport struct {
	BatchID string      `json:"batch_id"`
	Total   int         `json:"total"`
	Aborted bool        `json:"aborted"`
	Results []RowResult `json:"results"`
}

// Counts tallies results by status.
func (r *BatchReport) Counts() (sent, skipped, failed int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusSent:
			sent++
		case StatusSkipped:
			skipped++
		case StatusError:
			failed++
		}
	}
	return sent, skipped, failed
}
