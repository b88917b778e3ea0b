package model

import (
	"time"
)

// CheckLog is the persisted record of one completed link check.
type CheckLog struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	BatchID     string    `json:"batch_id" gorm:"type:varchar(36);index"`
	SourceURL   string    `json:"source_url" gorm:"type:varchar(2048);not null"`
	RedirectURL string    `json:"redirect_url" gorm:"type:varchar(2048)"`
	Category    string    `json:"link_category" gorm:"type:varchar(16);index"`
	Outcome     string    `json:"outcome_kind" gorm:"type:varchar(24);index"`
	Status      string    `json:"status" gorm:"type:varchar(16)"`
	Message     string    `json:"message" gorm:"type:varchar(512)"`
	CheckedAt   time.Time `json:"checked_at" gorm:"autoCreateTime"`
}

// TableName returns the table name for CheckLog
func (CheckLog) TableName() string {
	return "check_logs"
}

// NewCheckLog flattens an AnalysisResult into its persisted form. Status is
// the category-specific state (gift or vip), empty for failed checks.
func NewCheckLog(batchID string, r *AnalysisResult) *CheckLog {
	cl := &CheckLog{
		BatchID:     batchID,
		SourceURL:   r.SourceURL,
		RedirectURL: r.RedirectURL,
		Category:    string(r.Category),
		Outcome:     string(r.Outcome),
		Message:     r.Message,
		CheckedAt:   r.CheckedAt,
	}
	switch {
	case r.Gift != nil:
		cl.Status = string(r.Gift.Status)
	case r.Vip != nil:
		cl.Status = string(r.Vip.Status)
	}
	return cl
}
