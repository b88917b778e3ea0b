package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"giftcheck/internal/model"

	"github.com/rs/zerolog/log"
)

const msPerDay = 24 * 60 * 60 * 1000

// tokenInfo is what a VIP invitation URL encodes.
type tokenInfo struct {
	Token      string
	RecordID   string
	ActivityID string
}

// Known fixed path segments that are not activity IDs.
var vipPathLiterals = map[string]bool{
	"g":             true,
	vipInviteMarker: true,
}

// vipDetailResponse is the detail-lookup envelope. The payload carries the
// expiry under one of several field names depending on the endpoint.
type vipDetailResponse struct {
	Data *vipDetail `json:"data"`
}

type vipDetail struct {
	ExpireTime           *int64 `json:"expireTime"`
	TokenExpireTime      *int64 `json:"tokenExpireTime"`
	ExpireTimeSnake      *int64 `json:"expire_time"`
	TokenExpireTimeSnake *int64 `json:"token_expire_time"`

	Inviter *struct {
		Nickname string `json:"nickname"`
	} `json:"inviter"`
	InviterNickname  string `json:"inviterNickname"`
	InviterTotalDays int    `json:"inviterTotalDays"`
	TotalDays        int    `json:"totalDays"`
}

// expiry returns the first present expiry field, highest priority first.
func (d *vipDetail) expiry() (int64, bool) {
	for _, v := range []*int64{d.ExpireTime, d.TokenExpireTime, d.ExpireTimeSnake, d.TokenExpireTimeSnake} {
		if v != nil && *v > 0 {
			return *v, true
		}
	}
	return 0, false
}

func (d *vipDetail) inviterName() string {
	if d.Inviter != nil && d.Inviter.Nickname != "" {
		return d.Inviter.Nickname
	}
	return d.InviterNickname
}

func (d *vipDetail) invitedDays() int {
	if d.InviterTotalDays > 0 {
		return d.InviterTotalDays
	}
	return d.TotalDays
}

// Ordered timestamp-extraction ladder for the page-scan tier. The first
// pattern whose capture is a 13-digit number wins.
var expirePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"expireTime"\s*:\s*"?(\d{13})"?`),
	regexp.MustCompile(`(?i)'expireTime'\s*:\s*'?(\d{13})'?`),
	regexp.MustCompile(`(?i)expireTime["']?\s*[=:]\s*["']?(\d{13})["']?`),
	regexp.MustCompile(`(?i)expire_time["']?\s*[=:]\s*["']?(\d{13})["']?`),
	regexp.MustCompile(`(?i)tokenExpireTime["']?\s*[=:]\s*["']?(\d{13})["']?`),
	regexp.MustCompile(`(?i)expire[^:]*:\s*(\d{13})`),
	regexp.MustCompile(`(?i)time[^:]*:\s*(\d{13})`),
}

// genericTimestampPattern matches any 13-digit millisecond epoch between
// roughly 2017 and 2039. Heuristic: unrelated embedded timestamps can match.
var genericTimestampPattern = regexp.MustCompile(`\b(1[6-9]\d{11})\b`)

// Vendor page phrases indicating a terminal state when no timestamp exists.
// Ordered; the first phrase found in the body wins.
var pageStates = []struct {
	phrase  string
	state   string
	expired bool
}{
	{"已过期", "expired", true},
	{"活动已结束", "activity ended", true},
	{"邀请已失效", "invitation invalid", false},
	{"链接已失效", "link invalid", false},
	{"不存在", "not found", false},
	{"已领取", "claimed", false},
	{"领取成功", "claimed successfully", false},
	{"活动火爆", "busy", false},
	{"请稍后重试", "retry later", false},
}

// checkVip determines whether a VIP invitation is still redeemable. Tier 1
// asks the detail-lookup endpoints; tier 2 scans the invitation page itself.
func (c *Checker) checkVip(ctx context.Context, sourceURL, redirectURL string) *model.AnalysisResult {
	info := extractTokenInfo(redirectURL)

	if info.Token != "" {
		if vip := c.vipFromAPI(ctx, info); vip != nil {
			return vipResult(sourceURL, redirectURL, vip, "")
		}
	}

	return c.vipFromPage(ctx, sourceURL, redirectURL)
}

// vipFromAPI walks the configured detail endpoints in order and keeps the
// first answer that parses and carries an expiry field. Returns nil when no
// endpoint yields one.
func (c *Checker) vipFromAPI(ctx context.Context, info *tokenInfo) *model.VipResult {
	for _, endpoint := range c.vendor.VipDetailAPIs {
		detail, ok := c.fetchVipDetail(ctx, endpoint, info)
		if !ok {
			continue
		}

		expireMS, found := detail.expiry()
		if !found {
			log.Debug().Str("endpoint", endpoint).Msg("VIP detail response has no expiry field")
			continue
		}

		nowMS := nowFn().UnixMilli()
		vip := &model.VipResult{
			ExpireEpochMS: expireMS,
			RemainingDays: float64(expireMS-nowMS) / msPerDay,
			Method:        model.MethodAPI,
			InviterName:   detail.inviterName(),
			InvitedDays:   detail.invitedDays(),
		}
		if expireMS > nowMS {
			vip.Status = model.VipValid
		} else {
			vip.Status = model.VipExpired
		}
		return vip
	}

	return nil
}

func (c *Checker) fetchVipDetail(ctx context.Context, endpoint string, info *tokenInfo) (*vipDetail, bool) {
	apiCtx, cancel := context.WithTimeout(ctx, c.vendor.APITimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(apiCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false
	}
	c.setHeaders(req)

	query := req.URL.Query()
	if info.Token != "" {
		query.Set("token", info.Token)
	}
	if info.RecordID != "" {
		query.Set("recordId", info.RecordID)
	}
	req.URL.RawQuery = query.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", endpoint).Msg("VIP detail request failed")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}

	var detailResp vipDetailResponse
	if err := json.Unmarshal(body, &detailResp); err != nil || detailResp.Data == nil {
		return nil, false
	}

	return detailResp.Data, true
}

// vipFromPage fetches the invitation page and extracts an expiry timestamp
// from the markup, falling back to page-state phrases.
func (c *Checker) vipFromPage(ctx context.Context, sourceURL, redirectURL string) *model.AnalysisResult {
	pageCtx, cancel := context.WithTimeout(ctx, c.vendor.PageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pageCtx, http.MethodGet, redirectURL, nil)
	if err != nil {
		return vipResult(sourceURL, redirectURL, &model.VipResult{
			Status: model.VipCheckFailed,
			Method: model.MethodError,
		}, "malformed invitation URL")
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		cerr := classifyTransportError(err)
		return vipResult(sourceURL, redirectURL, &model.VipResult{
			Status: model.VipCheckFailed,
			Method: model.MethodError,
		}, "page fetch failed: "+cerr.Message)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return vipResult(sourceURL, redirectURL, &model.VipResult{
			Status: model.VipCheckFailed,
			Method: model.MethodError,
		}, fmt.Sprintf("page fetch failed: HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return vipResult(sourceURL, redirectURL, &model.VipResult{
			Status: model.VipCheckFailed,
			Method: model.MethodError,
		}, "page read failed")
	}

	content := string(body)

	if expireMS, ok := scanExpiry(content); ok {
		nowMS := nowFn().UnixMilli()
		vip := &model.VipResult{
			ExpireEpochMS: expireMS,
			RemainingDays: float64(expireMS-nowMS) / msPerDay,
			Method:        model.MethodPageScan,
		}
		if expireMS > nowMS {
			vip.Status = model.VipValid
		} else {
			vip.Status = model.VipExpired
		}
		return vipResult(sourceURL, redirectURL, vip, "")
	}

	for _, ps := range pageStates {
		if strings.Contains(content, ps.phrase) {
			vip := &model.VipResult{Method: model.MethodPageScan}
			if ps.expired {
				vip.Status = model.VipExpired
			} else {
				vip.Status = model.VipCheckFailed
			}
			return vipResult(sourceURL, redirectURL, vip, "page state: "+ps.state)
		}
	}

	return vipResult(sourceURL, redirectURL, &model.VipResult{
		Status: model.VipCheckFailed,
		Method: model.MethodPageScan,
	}, "no expiry information found")
}

// scanExpiry runs the pattern ladder, then the generic 13-digit scan. For
// the generic scan it prefers the maximum timestamp still in the future,
// else the maximum found.
func scanExpiry(content string) (int64, bool) {
	for _, pattern := range expirePatterns {
		if m := pattern.FindStringSubmatch(content); len(m) > 1 {
			if ts, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return ts, true
			}
		}
	}

	matches := genericTimestampPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return 0, false
	}

	nowMS := nowFn().UnixMilli()
	var maxFuture, maxAny int64
	for _, m := range matches {
		ts, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if ts > maxAny {
			maxAny = ts
		}
		if ts > nowMS && ts > maxFuture {
			maxFuture = ts
		}
	}

	if maxFuture > 0 {
		log.Debug().Int64("expire_ms", maxFuture).Msg("Using maximum future page timestamp")
		return maxFuture, true
	}
	if maxAny > 0 {
		log.Debug().Int64("expire_ms", maxAny).Msg("No future page timestamp, using maximum found")
		return maxAny, true
	}
	return 0, false
}

// vipResult assembles the success-shaped row for a VIP determination.
func vipResult(sourceURL, redirectURL string, vip *model.VipResult, message string) *model.AnalysisResult {
	return &model.AnalysisResult{
		SourceURL:   sourceURL,
		Outcome:     model.OutcomeSuccess,
		RedirectURL: redirectURL,
		Category:    model.CategoryVipInvite,
		Vip:         vip,
		Message:     message,
		CheckedAt:   nowFn(),
	}
}

// extractTokenInfo pulls token/recordId from the query string and derives
// the activity ID from the first path segment that is not a fixed literal.
func extractTokenInfo(redirectURL string) *tokenInfo {
	info := &tokenInfo{}

	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return info
	}

	query := parsed.Query()
	info.Token = query.Get("token")
	info.RecordID = query.Get("recordId")

	for _, part := range strings.Split(parsed.Path, "/") {
		if part != "" && !vipPathLiterals[part] {
			info.ActivityID = part
			break
		}
	}

	return info
}
