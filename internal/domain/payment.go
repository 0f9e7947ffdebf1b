package domain

import "time"

// MinPaymentAmount is the smallest payable amount in cents (KES 1).
const MinPaymentAmount = 100

// PaymentRequest is the parameter object for one STK push attempt.
// Immutable after creation; never persisted on its own.
type PaymentRequest struct {
	PhoneNumber      string
	Amount           int64 // cents
	OrderID          string
	AccountReference string
	TransactionDesc  string
}

// Validate checks the request shape before any network call is made.
func (r PaymentRequest) Validate() error {
	if r.PhoneNumber == "" {
		return &ValidationError{Field: "phone_number", Reason: "required"}
	}
	if !ValidPhone(r.PhoneNumber) {
		return &ValidationError{Field: "phone_number", Reason: "must be a Kenyan number in 254XXXXXXXXX format"}
	}
	if r.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	if r.Amount < MinPaymentAmount {
		return &ValidationError{Field: "amount", Reason: "minimum amount is KES 1"}
	}
	if r.OrderID == "" {
		return &ValidationError{Field: "order_id", Reason: "required"}
	}
	if r.AccountReference == "" {
		return &ValidationError{Field: "account_reference", Reason: "required"}
	}
	return nil
}

// PaymentResult is the reconciled outcome of a gateway callback.
type PaymentResult struct {
	Success           bool       `json:"success"`
	ReceiptNumber     string     `json:"mpesa_receipt_number,omitempty"`
	TransactionDate   *time.Time `json:"transaction_date,omitempty"`
	PhoneNumber       string     `json:"phone_number,omitempty"`
	Amount            float64    `json:"amount,omitempty"`
	ResultCode        int        `json:"result_code"`
	ResultDescription string     `json:"result_description"`
}
