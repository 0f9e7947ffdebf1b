package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"solestore-payments/internal/domain"
)

const transactionTypePayBill = "CustomerPayBillOnline"

// STKPushRequest is the Daraja wire payload. Amount is a numeric string of
// whole shillings; the password ties the request to its declared timestamp.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type gatewayError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// InitiateSTKPush validates req and submits a push-payment prompt to the
// payer's phone. The synchronous response only means "accepted for
// processing"; the final outcome arrives later on the callback URL.
//
// Callers must persist the returned CheckoutRequestID against the order
// before replying to the end user - it is the only key by which the
// asynchronous callback can be matched.
func (c *Client) InitiateSTKPush(ctx context.Context, req domain.PaymentRequest) (*STKPushResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if c.cfg.CallbackURL == "" {
		return nil, &domain.ValidationError{Field: "callback_url", Reason: "not configured"}
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	payload := STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.stkPassword(timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            strconv.FormatInt(req.Amount/100, 10),
		PartyA:            req.PhoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.TransactionDesc,
	}

	c.logger.Info("initiating stk push",
		zap.String("order_id", req.OrderID),
		zap.String("phone", req.PhoneNumber),
		zap.Int64("amount_cents", req.Amount))

	resp, err := c.submitSTKPush(ctx, token, payload)
	if isTokenRejected(err) {
		// The gateway invalidated our cached token early; refresh once.
		c.logger.Warn("stk push rejected for stale token, refreshing", zap.String("order_id", req.OrderID))
		if token, err = c.ForceRefresh(ctx); err != nil {
			return nil, err
		}
		resp, err = c.submitSTKPush(ctx, token, payload)
		if isTokenRejected(err) {
			err = &domain.InitiationError{
				Retryable:   true,
				Code:        "401",
				Description: "access token rejected after refresh",
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if resp.ResponseCode != "0" {
		return nil, &domain.InitiationError{
			Retryable:   false,
			Code:        resp.ResponseCode,
			Description: resp.ResponseDescription,
		}
	}

	c.logger.Info("stk push accepted",
		zap.String("order_id", req.OrderID),
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.String("merchant_request_id", resp.MerchantRequestID))

	return resp, nil
}

func (c *Client) submitSTKPush(ctx context.Context, token string, payload STKPushRequest) (*STKPushResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.InitiationError{Retryable: false, Description: "encoding request", Err: err}
	}

	url := c.baseURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.InitiationError{Retryable: false, Description: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are worth retrying.
		return nil, &domain.InitiationError{Retryable: true, Description: "gateway unreachable", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.InitiationError{Retryable: true, Description: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var gwErr gatewayError
		_ = json.Unmarshal(raw, &gwErr)
		desc := gwErr.ErrorMessage
		if desc == "" {
			desc = fmt.Sprintf("gateway returned %d", resp.StatusCode)
		}
		code := gwErr.ErrorCode
		if code == "" {
			code = strconv.Itoa(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, errTokenRejected
		}
		return nil, &domain.InitiationError{
			// 5xx is the gateway having a bad moment; 4xx is on us.
			Retryable:   resp.StatusCode >= 500,
			Code:        code,
			Description: desc,
		}
	}

	var out STKPushResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.InitiationError{Retryable: false, Description: "decoding response", Err: err}
	}
	return &out, nil
}

// stkPassword derives the per-request password: base64(shortcode + passkey
// + timestamp). The gateway validates it against the declared Timestamp.
func (c *Client) stkPassword(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

// errTokenRejected marks a 401 from the stk push endpoint: the bearer
// token expired or was invalidated server-side. Handled internally with a
// single forced refresh; a second 401 surfaces as a fresh retryable
// InitiationError, never this sentinel.
var errTokenRejected = &domain.InitiationError{
	Retryable:   true,
	Code:        "401",
	Description: "access token rejected",
}

func isTokenRejected(err error) bool {
	return err == errTokenRejected
}
