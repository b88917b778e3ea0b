package model

import (
	"fmt"
	"time"
)

// OutcomeKind classifies the overall outcome of analyzing one link.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeInvalid         OutcomeKind = "invalid"
	OutcomeAPIException    OutcomeKind = "api_exception"
	OutcomeSystemException OutcomeKind = "system_exception"
)

// LinkCategory is the kind of page a short link resolves to.
type LinkCategory string

const (
	CategoryGiftCard  LinkCategory = "gift_card"
	CategoryVipInvite LinkCategory = "vip_invite"
	CategoryUnknown   LinkCategory = "unknown"
)

// GiftStatus is the redemption state of a gift-card link.
type GiftStatus string

const (
	GiftAvailable GiftStatus = "available"
	GiftExpired   GiftStatus = "expired"
	GiftClaimed   GiftStatus = "claimed"
	GiftUnknown   GiftStatus = "unknown"
)

// VipStatus is the redemption state of a VIP invitation link.
type VipStatus string

const (
	VipValid       VipStatus = "valid"
	VipExpired     VipStatus = "expired"
	VipCheckFailed VipStatus = "check_failed"
)

// DetectionMethod records which tier produced a VIP expiry determination.
type DetectionMethod string

const (
	MethodAPI      DetectionMethod = "api"
	MethodPageScan DetectionMethod = "page_scan"
	MethodError    DetectionMethod = "error"
)

// ErrorCategory subclassifies non-success outcomes.
type ErrorCategory string

const (
	ErrNotFound         ErrorCategory = "not_found"
	ErrConnection       ErrorCategory = "connection_error"
	ErrTimeout          ErrorCategory = "timeout"
	ErrHTTP             ErrorCategory = "http_error"
	ErrRedirect         ErrorCategory = "redirect_error"
	ErrSSL              ErrorCategory = "ssl_error"
	ErrRequest          ErrorCategory = "request_error"
	ErrForbidden        ErrorCategory = "forbidden"
	ErrRateLimit        ErrorCategory = "rate_limit"
	ErrServer           ErrorCategory = "server_error"
	ErrJSONDecode       ErrorCategory = "json_decode_error"
	ErrAPIBusiness      ErrorCategory = "api_business_error"
	ErrMissingData      ErrorCategory = "missing_data"
	ErrMissingRedirect  ErrorCategory = "missing_redirect"
	ErrUnrecognizedLink ErrorCategory = "unrecognized_link"
	ErrUnknown          ErrorCategory = "unknown_error"
)

// GiftResult carries the gift-card fields of a successful check.
type GiftResult struct {
	Status         GiftStatus `json:"status"`
	TotalCount     int        `json:"total_count"`
	UsedCount      int        `json:"used_count"`
	AvailableCount int        `json:"available_count"`
	UnitPrice      float64    `json:"unit_price"`
	SenderName     string     `json:"sender_name"`
	TypeLabel      string     `json:"type_label"`
	ExpireEpochMS  int64      `json:"expire_epoch_ms,omitempty"`
	ExpireDisplay  string     `json:"expire_display,omitempty"`
}

// VipResult carries the VIP-invitation fields of a successful check.
type VipResult struct {
	Status        VipStatus       `json:"status"`
	ExpireEpochMS int64           `json:"expire_epoch_ms,omitempty"`
	RemainingDays float64         `json:"remaining_days"`
	Method        DetectionMethod `json:"detection_method"`
	InviterName   string          `json:"inviter_name,omitempty"`
	InvitedDays   int             `json:"invited_days,omitempty"`
}

// AnalysisResult is the outcome of analyzing one submitted link. Exactly one
// of Gift/Vip is set when Outcome is success; ErrorCategory and Message are
// set otherwise. Results are never mutated after creation.
type AnalysisResult struct {
	SourceURL     string        `json:"source_url"`
	Outcome       OutcomeKind   `json:"outcome_kind"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
	Category      LinkCategory  `json:"link_category"`
	Gift          *GiftResult   `json:"gift,omitempty"`
	Vip           *VipResult    `json:"vip,omitempty"`
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
	Message       string        `json:"human_message,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// StatusLabel renders a one-line human summary of the result, suitable for
// progress reporting and table rows.
func (r *AnalysisResult) StatusLabel() string {
	switch r.Outcome {
	case OutcomeSuccess:
		switch {
		case r.Gift != nil:
			switch r.Gift.Status {
			case GiftAvailable:
				return fmt.Sprintf("available (%d/%d) | %s", r.Gift.AvailableCount, r.Gift.TotalCount, r.Gift.TypeLabel)
			case GiftExpired:
				return "gift expired"
			case GiftClaimed:
				return "gift fully claimed"
			default:
				return "gift status unknown"
			}
		case r.Vip != nil:
			switch r.Vip.Status {
			case VipValid:
				return fmt.Sprintf("[%s] vip valid, %.1f days left", r.Vip.Method, r.Vip.RemainingDays)
			case VipExpired:
				return fmt.Sprintf("[%s] vip expired", r.Vip.Method)
			default:
				return "vip check failed: " + r.Message
			}
		}
		return "success"
	case OutcomeAPIException:
		return fmt.Sprintf("api exception: %s", r.ErrorCategory)
	case OutcomeInvalid:
		return "invalid: " + r.Message
	default:
		return "error: " + r.Message
	}
}
