package mpesa

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"solestore-payments/internal/domain"
)

// Metadata item names the gateway uses in CallbackMetadata. Lookups are
// case-sensitive, first match wins.
const (
	metaAmount          = "Amount"
	metaReceiptNumber   = "MpesaReceiptNumber"
	metaTransactionDate = "TransactionDate"
	metaPhoneNumber     = "PhoneNumber"
)

// CallbackEnvelope mirrors the inbound STK callback body.
type CallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string            `json:"MerchantRequestID"`
			CheckoutRequestID string            `json:"CheckoutRequestID"`
			ResultCode        *int              `json:"ResultCode"`
			ResultDesc        string            `json:"ResultDesc"`
			CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// CallbackMetadata is the gateway's untyped association list. It is decoded
// into typed fields immediately on receipt; nothing downstream sees it.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// CallbackResult is the typed outcome of one STK callback.
type CallbackResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Success           bool
	ReceiptNumber     string
	Amount            float64
	PhoneNumber       string
	TransactionDate   *time.Time
}

// PaymentResult converts the callback into the domain's reconciled form.
func (r *CallbackResult) PaymentResult() domain.PaymentResult {
	return domain.PaymentResult{
		Success:           r.Success,
		ReceiptNumber:     r.ReceiptNumber,
		TransactionDate:   r.TransactionDate,
		PhoneNumber:       r.PhoneNumber,
		Amount:            r.Amount,
		ResultCode:        r.ResultCode,
		ResultDescription: r.ResultDesc,
	}
}

// ParseCallback decodes and structurally validates a raw callback payload.
// A payload missing either correlation id or a numeric ResultCode yields a
// MalformedCallbackError; the HTTP handler still acknowledges those with
// 200 so the gateway does not retry-storm the endpoint.
func ParseCallback(payload []byte) (*CallbackResult, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &domain.MalformedCallbackError{Reason: fmt.Sprintf("undecodable payload: %v", err)}
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, &domain.MalformedCallbackError{Reason: "missing CheckoutRequestID"}
	}
	if cb.MerchantRequestID == "" {
		return nil, &domain.MalformedCallbackError{Reason: "missing MerchantRequestID"}
	}
	if cb.ResultCode == nil {
		return nil, &domain.MalformedCallbackError{Reason: "missing numeric ResultCode"}
	}

	result := &CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		Success:           *cb.ResultCode == 0,
	}

	if result.Success && cb.CallbackMetadata != nil {
		items := cb.CallbackMetadata.Item
		result.ReceiptNumber = metaString(items, metaReceiptNumber)
		result.Amount = metaFloat(items, metaAmount)
		result.PhoneNumber = metaString(items, metaPhoneNumber)
		result.TransactionDate = parseTransactionDate(metaValue(items, metaTransactionDate))
	}

	return result, nil
}

func metaValue(items []MetadataItem, name string) interface{} {
	for _, item := range items {
		if item.Name == name {
			return item.Value
		}
	}
	return nil
}

func metaString(items []MetadataItem, name string) string {
	switch v := metaValue(items, name).(type) {
	case string:
		return v
	case float64:
		// Phone numbers arrive as JSON numbers.
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func metaFloat(items []MetadataItem, name string) float64 {
	switch v := metaValue(items, name).(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// parseTransactionDate parses the gateway's YYYYMMDDHHMMSS integer
// encoding. A missing or malformed value yields nil, never an error.
func parseTransactionDate(v interface{}) *time.Time {
	var s string
	switch val := v.(type) {
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		s = val
	default:
		return nil
	}

	if len(s) != 14 {
		return nil
	}
	t, err := time.ParseInLocation("20060102150405", s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}
