package audit

import "time"

// TimelineFilters narrows the audit trail of one franchise.
type TimelineFilters struct {
	FranchiseID string
	From        time.Time
	To          time.Time
	Actor       string
	Entity      string
	Action      string
	Page        int
	PageSize    int
}

// TimelineRow is one audit_logs record.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo holds simple page metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// WindowParams is a single page query.
type WindowParams struct {
	TimelineFilters
	Offset int
	Limit  int
}
