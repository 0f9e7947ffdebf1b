package usecase

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"solestore-payments/internal/domain"
	"solestore-payments/internal/provider/mpesa"
	"solestore-payments/internal/repository"
)

// OrderNotifier pushes order state transitions to interested subscribers,
// typically the websocket feed backing the checkout page.
type OrderNotifier interface {
	NotifyOrder(order *domain.Order)
}

// CallbackUsecase reconciles asynchronous gateway callbacks against
// pending orders. Duplicate and unknown callbacks are absorbed silently;
// the handler always acknowledges regardless of what happens here.
type CallbackUsecase struct {
	store    repository.Store
	notifier OrderNotifier
	logger   *zap.Logger
}

func NewCallbackUsecase(store repository.Store, notifier OrderNotifier, logger *zap.Logger) *CallbackUsecase {
	return &CallbackUsecase{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// ProcessCallback matches the callback to its order by CheckoutRequestID
// and finalizes exactly once. Every payload that reaches us is recorded in
// the audit trail, including the ones we cannot act on.
func (uc *CallbackUsecase) ProcessCallback(ctx context.Context, payload []byte) error {
	result, err := mpesa.ParseCallback(payload)
	if err != nil {
		uc.record(ctx, "", domain.EventCallbackBadShape, payload, 0, err.Error())
		uc.logger.Warn("malformed callback payload", zap.Error(err))
		return err
	}

	order, err := uc.store.GetOrderByCheckoutID(ctx, result.CheckoutRequestID)
	if err != nil {
		if err == domain.ErrOrderNotFound {
			uc.record(ctx, result.CheckoutRequestID, domain.EventCallbackUnknown, payload, result.ResultCode, result.ResultDesc)
			uc.logger.Warn("callback for unknown checkout request",
				zap.String("checkout_request_id", result.CheckoutRequestID),
				zap.Int("result_code", result.ResultCode))
			return nil
		}
		return err
	}

	uc.record(ctx, order.ID, domain.EventCallbackReceived, payload, result.ResultCode, result.ResultDesc)

	if !order.Status.AwaitingPayment() {
		return uc.recordDuplicate(ctx, order, result)
	}

	if result.Success {
		return uc.finalizePaid(ctx, order, result)
	}
	return uc.finalizeFailed(ctx, order, result)
}

// recordDuplicate absorbs a redelivery of an already-settled callback.
// The gateway retries; nothing moves and subscribers are not re-notified.
func (uc *CallbackUsecase) recordDuplicate(ctx context.Context, order *domain.Order, result *mpesa.CallbackResult) error {
	uc.record(ctx, order.ID, domain.EventCallbackRepeat, nil, result.ResultCode, result.ResultDesc)
	uc.logger.Info("duplicate callback ignored",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)))
	return nil
}

func (uc *CallbackUsecase) finalizePaid(ctx context.Context, order *domain.Order, result *mpesa.CallbackResult) error {
	paidAt := time.Now()
	if result.TransactionDate != nil {
		paidAt = *result.TransactionDate
	}

	applied, err := uc.store.FinalizePaid(ctx, order, result.ReceiptNumber, paidAt)
	if err != nil {
		uc.logger.Error("failed to finalize paid order",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return err
	}
	if !applied {
		// Lost the race against a concurrent delivery; the winner already
		// audited and notified.
		return uc.recordDuplicate(ctx, order, result)
	}

	uc.record(ctx, order.ID, domain.EventPaymentCompleted, nil, result.ResultCode, result.ResultDesc)
	uc.logger.Info("payment completed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("receipt_number", result.ReceiptNumber),
		zap.Float64("amount", result.Amount))

	uc.notify(ctx, order.ID)
	return nil
}

func (uc *CallbackUsecase) finalizeFailed(ctx context.Context, order *domain.Order, result *mpesa.CallbackResult) error {
	applied, err := uc.store.FinalizeFailed(ctx, order)
	if err != nil {
		uc.logger.Error("failed to finalize failed order",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return err
	}
	if !applied {
		return uc.recordDuplicate(ctx, order, result)
	}

	uc.record(ctx, order.ID, domain.EventPaymentFailed, nil, result.ResultCode, result.ResultDesc)
	uc.logger.Info("payment failed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("result_code", result.ResultCode),
		zap.String("result_desc", result.ResultDesc))

	uc.notify(ctx, order.ID)
	return nil
}

// notify re-reads the order so subscribers see the settled state, then
// fans out. Best-effort: the payment outcome is already durable.
func (uc *CallbackUsecase) notify(ctx context.Context, orderID string) {
	if uc.notifier == nil {
		return
	}
	order, err := uc.store.GetOrder(ctx, orderID)
	if err != nil {
		uc.logger.Warn("failed to load order for notification",
			zap.String("order_id", orderID),
			zap.Error(err))
		return
	}
	uc.notifier.NotifyOrder(order)
}

func (uc *CallbackUsecase) record(ctx context.Context, orderRef, eventType string, payload json.RawMessage, code int, desc string) {
	err := uc.store.AppendPaymentEvent(ctx, &domain.PaymentEvent{
		OrderRef:   orderRef,
		EventType:  eventType,
		Payload:    payload,
		ResultCode: code,
		ResultDesc: desc,
	})
	if err != nil {
		uc.logger.Warn("failed to append payment event",
			zap.String("order_ref", orderRef),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
