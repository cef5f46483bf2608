// Package audit reads the catalog change log written by the mutation coordinator.
package audit

import "time"

// TimelineFilters narrows the change log. To is inclusive of the whole day.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one recorded catalog write.
type TimelineRow struct {
	At       time.Time
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// PagingInfo carries simple previous/next paging.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result wraps one page of the timeline.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// ViewModel is the data of the change log page.
type ViewModel struct {
	Filters TimelineFilters
	Rows    []TimelineRow
	Paging  PagingInfo
}
