package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"giftcheck/internal/encryptor"
	"giftcheck/internal/model"

	"github.com/rs/zerolog/log"
)

// Documented parameter defaults for the gift endpoint.
const (
	defaultAppVersion = "9.1.80"
	defaultDlt        = "0846"
)

// giftRequest is the plaintext body encrypted into the params field. Missing
// link parameters are sent as empty strings; the vendor API reports
// missing-data errors itself.
type giftRequest struct {
	D          string `json:"d"`
	P          string `json:"p"`
	UserID     string `json:"userid"`
	AppVersion string `json:"app_version"`
	Dlt        string `json:"dlt"`
	CSRFToken  string `json:"csrf_token"`
}

// Response schema for the gift endpoint. Pointers mark fields whose absence
// is meaningful; an unexpected shape surfaces as an explicit parse failure
// rather than a silent default.
type giftAPIResponse struct {
	Code    *int      `json:"code"`
	Message string    `json:"message"`
	Data    *giftData `json:"data"`
}

type giftData struct {
	Record *giftRecord `json:"record"`
	Sku    *giftSku    `json:"sku"`
	Sender *giftSender `json:"sender"`
}

type giftRecord struct {
	ExpireTime int64 `json:"expireTime"`
	TotalCount int   `json:"totalCount"`
	UsedCount  int   `json:"usedCount"`
}

type giftSku struct {
	Goods string  `json:"goods"`
	Price float64 `json:"price"`
}

type giftSender struct {
	NickName string `json:"nickName"`
}

// checkGift turns a resolved gift-card redirect target into a normalized
// result: extract the link parameters, submit the encrypted status request,
// and derive the redemption status from the response.
func (c *Checker) checkGift(ctx context.Context, sourceURL, redirectURL string) *model.AnalysisResult {
	giftReq := extractGiftParams(redirectURL)

	plaintext, err := json.Marshal(giftReq)
	if err != nil {
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard,
			&CheckError{model.OutcomeSystemException, model.ErrUnknown, "failed to encode request", err})
	}

	encrypted, err := encryptor.EncryptParams(string(plaintext))
	if err != nil {
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard,
			&CheckError{model.OutcomeSystemException, model.ErrUnknown, "failed to encrypt request", err})
	}

	form := url.Values{}
	form.Set("params", encrypted.Params)
	form.Set("encSecKey", encrypted.EncSecKey)

	apiCtx, cancel := context.WithTimeout(ctx, c.vendor.APITimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(apiCtx, http.MethodPost, c.vendor.GiftAPI, strings.NewReader(form.Encode()))
	if err != nil {
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard,
			&CheckError{model.OutcomeSystemException, model.ErrUnknown, "failed to build request", err})
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard, classifyTransportError(err))
	}
	defer resp.Body.Close()

	if cerr := giftStatusError(resp.StatusCode); cerr != nil {
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard, cerr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard, classifyTransportError(err))
	}

	var apiResp giftAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard,
			&CheckError{model.OutcomeAPIException, model.ErrJSONDecode, "gift API returned a non-JSON body", err})
	}

	return c.parseGiftResponse(sourceURL, redirectURL, &apiResp)
}

// giftStatusError maps a non-200 HTTP status to the taxonomy.
func giftStatusError(status int) *CheckError {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusForbidden:
		return newCheckError(model.OutcomeAPIException, model.ErrForbidden, "gift API access denied (403)")
	case status == http.StatusTooManyRequests:
		return newCheckError(model.OutcomeAPIException, model.ErrRateLimit, "gift API rate limited (429)")
	case status >= 500:
		return newCheckError(model.OutcomeAPIException, model.ErrServer, fmt.Sprintf("gift API server error (%d)", status))
	default:
		return newCheckError(model.OutcomeAPIException, model.ErrHTTP, fmt.Sprintf("gift API HTTP error (%d)", status))
	}
}

// parseGiftResponse applies the business-level checks and derives the status.
// Expiry takes precedence over count-based classification.
func (c *Checker) parseGiftResponse(sourceURL, redirectURL string, apiResp *giftAPIResponse) *model.AnalysisResult {
	if apiResp.Code != nil && *apiResp.Code != 200 {
		msg := apiResp.Message
		if msg == "" {
			msg = "unknown API error"
		}
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard,
			newCheckError(model.OutcomeAPIException, model.ErrAPIBusiness,
				fmt.Sprintf("gift API business error (%d): %s", *apiResp.Code, msg)))
	}

	if apiResp.Data == nil {
		return failureResult(sourceURL, redirectURL, model.CategoryGiftCard,
			newCheckError(model.OutcomeAPIException, model.ErrMissingData, "gift API response carries no data"))
	}

	var (
		record giftRecord
		sku    giftSku
		sender giftSender
	)
	if apiResp.Data.Record != nil {
		record = *apiResp.Data.Record
	}
	if apiResp.Data.Sku != nil {
		sku = *apiResp.Data.Sku
	}
	if apiResp.Data.Sender != nil {
		sender = *apiResp.Data.Sender
	}

	nowMS := nowFn().UnixMilli()

	gift := &model.GiftResult{
		TotalCount:     record.TotalCount,
		UsedCount:      record.UsedCount,
		AvailableCount: max(0, record.TotalCount-record.UsedCount),
		UnitPrice:      sku.Price,
		SenderName:     sender.NickName,
		TypeLabel:      sku.Goods,
	}

	switch {
	case record.ExpireTime > 0 && nowMS > record.ExpireTime:
		gift.Status = model.GiftExpired
	case record.UsedCount >= record.TotalCount:
		gift.Status = model.GiftClaimed
	case record.TotalCount > record.UsedCount:
		gift.Status = model.GiftAvailable
	default:
		gift.Status = model.GiftUnknown
	}

	if record.ExpireTime > 0 {
		gift.ExpireEpochMS = record.ExpireTime
		gift.ExpireDisplay = time.UnixMilli(record.ExpireTime).In(beijingTZ).Format("2006-01-02 15:04:05")
	}

	log.Debug().
		Str("source_url", sourceURL).
		Str("gift_status", string(gift.Status)).
		Int("total", gift.TotalCount).
		Int("used", gift.UsedCount).
		Msg("Gift card checked")

	return &model.AnalysisResult{
		SourceURL:   sourceURL,
		Outcome:     model.OutcomeSuccess,
		RedirectURL: redirectURL,
		Category:    model.CategoryGiftCard,
		Gift:        gift,
		CheckedAt:   nowFn(),
	}
}

// extractGiftParams pulls the five query parameters off the redirect target,
// applying documented defaults for the missing ones.
func extractGiftParams(redirectURL string) *giftRequest {
	giftReq := &giftRequest{
		AppVersion: defaultAppVersion,
		Dlt:        defaultDlt,
	}

	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return giftReq
	}

	query := parsed.Query()
	giftReq.D = query.Get("d")
	giftReq.P = query.Get("p")
	giftReq.UserID = query.Get("userid")
	if v := query.Get("app_version"); v != "" {
		giftReq.AppVersion = v
	}
	if v := query.Get("dlt"); v != "" {
		giftReq.Dlt = v
	}

	return giftReq
}
