package models

import "encoding/json"

// Row is one result of a save or bulk save.
type Row struct {
	OK     bool   `json:"ok,omitempty"`
	ID     string `json:"id"`
	Rev    string `json:"rev,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Revision struct {
	Rev string `json:"rev"`
}

// Change is one entry of a change-feed response.
type Change struct {
	Seq     Sequence   `json:"seq"`
	ID      string     `json:"id"`
	Changes []Revision `json:"changes"`
	Deleted bool       `json:"deleted,omitempty"`
	Doc     Document   `json:"doc,omitempty"`
}

// ChangesResult is the body of a _changes response.
type ChangesResult struct {
	Results []Change `json:"results"`
	LastSeq Sequence `json:"last_seq"`
	Pending int64    `json:"pending,omitempty"`
}

type DatabaseInfo struct {
	DBName      string   `json:"db_name"`
	DocCount    int64    `json:"doc_count"`
	DocDelCount int64    `json:"doc_del_count"`
	UpdateSeq   Sequence `json:"update_seq"`
}

type ViewRow struct {
	ID    string          `json:"id,omitempty"`
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
	Doc   Document        `json:"doc,omitempty"`
}

// ViewResult is the body of a view or _all_docs response.
type ViewResult struct {
	TotalRows int64     `json:"total_rows"`
	Offset    int64     `json:"offset"`
	Rows      []ViewRow `json:"rows"`
	UpdateSeq Sequence  `json:"update_seq"`
}

type UUIDs struct {
	UUIDs []string `json:"uuids"`
}
