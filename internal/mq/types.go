package mq

import (
	"time"
)

// CheckResultMessage is the event published for every completed link check.
type CheckResultMessage struct {
	BatchID     string    `json:"batch_id"`
	SourceURL   string    `json:"source_url"`
	RedirectURL string    `json:"redirect_url"`
	Category    string    `json:"link_category"`
	Outcome     string    `json:"outcome_kind"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	CheckedAt   time.Time `json:"checked_at"`
}
