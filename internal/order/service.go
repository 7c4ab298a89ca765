package order

import (
	"context"
	"time"

	"brewbar-be/internal/logger"
	"brewbar-be/internal/menu"
	"brewbar-be/internal/notify"
	"brewbar-be/internal/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OverrideAction string

const (
	OverrideComplete OverrideAction = "complete"
	OverrideCancel   OverrideAction = "cancel"
)

type CheckoutItemInput struct {
	MenuItemID uint
	Quantity   int
}

type CheckoutInput struct {
	Items         []CheckoutItemInput
	CustomerEmail string
}

type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*Order, *payment.CheckoutResponse, error)
	GetOrder(ctx context.Context, externalID string) (*Order, error)
	KitchenQueue(ctx context.Context) ([]*Order, error)

	// MarkAsPaid applies the terminal success transition. Idempotent:
	// replays and out-of-order deliveries come back as AlreadyInState or
	// Superseded, never as an error.
	MarkAsPaid(ctx context.Context, externalID, providerPaymentID string) (TransitionResult, error)

	// MarkAsFailed applies the terminal failure/cancel transition.
	MarkAsFailed(ctx context.Context, externalID, providerPaymentID string, ps PaymentStatus) (TransitionResult, error)

	// Override is the admin-forced terminal transition. The caller must
	// already be a verified admin; actor and reason are recorded for audit.
	Override(ctx context.Context, externalID string, action OverrideAction, actor, reason string) (*Order, error)
}

type service struct {
	repo     Repository
	menuRepo menu.Repository
	payRepo  payment.Repository
	gateway  payment.Gateway
	notifier notify.Notifier
}

func NewService(
	repo Repository,
	menuRepo menu.Repository,
	payRepo payment.Repository,
	gateway payment.Gateway,
	notifier notify.Notifier,
) Service {
	return &service{
		repo:     repo,
		menuRepo: menuRepo,
		payRepo:  payRepo,
		gateway:  gateway,
		notifier: notifier,
	}
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*Order, *payment.CheckoutResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Checkout"),
		zap.Int("item_count", len(input.Items)),
	)

	if len(input.Items) == 0 {
		return nil, nil, ErrEmptyOrder
	}

	// 1. Validate quantities and resolve menu items.
	ids := make([]uint, 0, len(input.Items))
	for _, it := range input.Items {
		if it.Quantity <= 0 {
			log.Warn("invalid quantity", zap.Uint("menu_item_id", it.MenuItemID))
			return nil, nil, ErrInvalidQuantity
		}
		ids = append(ids, it.MenuItemID)
	}

	menuItems, err := s.menuRepo.GetByIDs(ctx, ids)
	if err != nil {
		log.Error("failed to resolve menu items", zap.Error(err))
		return nil, nil, err
	}

	// 2. Snapshot prices; the order must stay accurate even if menu prices
	// change later.
	items := make([]OrderItem, 0, len(input.Items))
	var total int64
	for _, it := range input.Items {
		m := menuItems[it.MenuItemID]
		items = append(items, OrderItem{
			MenuItemID:     m.ID,
			Name:           m.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: m.PriceCents,
		})
		total += m.PriceCents * int64(it.Quantity)
	}

	// 3. Persist the draft order; total is fixed here.
	o := &Order{
		ExternalID:    uuid.New(),
		Status:        StatusDraft,
		PaymentStatus: PaymentAwaiting,
		TotalCents:    total,
	}
	if err := s.repo.CreateOrderTx(ctx, o, items); err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, nil, err
	}

	log = log.With(
		zap.String("order_id", o.ExternalID.String()),
		zap.Int64("order_number", o.OrderNumber),
		zap.Int64("total_cents", o.TotalCents),
	)

	// 4. Create the provider checkout.
	checkout, err := s.gateway.CreateCheckout(ctx, o.ExternalID.String(), o.TotalCents, input.CustomerEmail)
	if err != nil {
		log.Error("failed to create provider checkout", zap.Error(err))
		return o, nil, err
	}

	p := &payment.Payment{
		OrderID:            o.ID,
		Provider:           checkout.Provider,
		ProviderCheckoutID: checkout.ProviderCheckoutID,
		RedirectURL:        checkout.RedirectURL,
		AmountCents:        checkout.AmountCents,
		Status:             "created",
	}
	if err := s.payRepo.SavePayment(ctx, p); err != nil {
		log.Error("failed to save payment", zap.Error(err))
		return o, nil, err
	}

	log.Info("checkout created")

	return o, checkout, nil
}

func (s *service) GetOrder(ctx context.Context, externalID string) (*Order, error) {
	return s.repo.GetDetail(ctx, externalID)
}

func (s *service) KitchenQueue(ctx context.Context) ([]*Order, error) {
	return s.repo.KitchenQueue(ctx)
}

func (s *service) MarkAsPaid(ctx context.Context, externalID, providerPaymentID string) (TransitionResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("order_id", externalID),
		zap.String("provider_payment_id", providerPaymentID),
	)

	res, err := s.repo.ConfirmPayment(ctx, externalID)
	if err != nil {
		return res, err
	}

	switch res {
	case Transitioned:
		log.Info("order marked as paid")
		s.notifyConfirmed(ctx, externalID, log)
	case AlreadyInState:
		log.Info("order already paid, duplicate delivery ignored")
	case Superseded:
		log.Warn("order already resolved to another terminal state, delivery ignored")
	}

	return res, nil
}

func (s *service) MarkAsFailed(ctx context.Context, externalID, providerPaymentID string, ps PaymentStatus) (TransitionResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("order_id", externalID),
		zap.String("provider_payment_id", providerPaymentID),
		zap.String("payment_status", string(ps)),
	)

	res, err := s.repo.CancelPayment(ctx, externalID, ps)
	if err != nil {
		return res, err
	}

	switch res {
	case Transitioned:
		log.Info("order cancelled after failed payment")
		s.notifyCancelled(ctx, externalID, log)
	case AlreadyInState:
		log.Info("order already failed, duplicate delivery ignored")
	case Superseded:
		log.Warn("order already resolved to another terminal state, delivery ignored")
	}

	return res, nil
}

func (s *service) Override(ctx context.Context, externalID string, action OverrideAction, actor, reason string) (*Order, error) {
	// The actor/reason fields are the audit record for a forced transition.
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Override"),
		zap.String("order_id", externalID),
		zap.String("action", string(action)),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)

	var (
		res TransitionResult
		err error
	)

	switch action {
	case OverrideComplete:
		res, err = s.repo.ConfirmPayment(ctx, externalID)
	case OverrideCancel:
		res, err = s.repo.CancelPayment(ctx, externalID, PaymentCancelled)
	default:
		return nil, ErrInvalidAction
	}

	if err != nil {
		log.Error("override failed", zap.Error(err))
		return nil, err
	}

	switch res {
	case Transitioned:
		log.Info("manual override applied")
		if action == OverrideComplete {
			s.notifyConfirmed(ctx, externalID, log)
		} else {
			s.notifyCancelled(ctx, externalID, log)
		}
	case AlreadyInState:
		log.Info("manual override is a no-op, order already in requested state")
	case Superseded:
		log.Warn("manual override conflicts with existing terminal state")
		return nil, ErrConflictingState
	}

	return s.repo.GetDetail(ctx, externalID)
}

// notifyConfirmed publishes the confirmation event. Best-effort: a failed
// send is logged and must never undo the payment transition.
func (s *service) notifyConfirmed(ctx context.Context, externalID string, log *zap.Logger) {
	o, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		log.Warn("failed to load order for confirmation notification", zap.Error(err))
		return
	}

	ev := notify.OrderEvent{
		OrderExternalID: o.ExternalID.String(),
		OrderNumber:     o.OrderNumber,
		TotalCents:      o.TotalCents,
		Timestamp:       time.Now().UTC(),
	}
	if err := s.notifier.OrderConfirmed(ctx, ev); err != nil {
		log.Warn("confirmation notification failed", zap.Error(err))
	}
}

func (s *service) notifyCancelled(ctx context.Context, externalID string, log *zap.Logger) {
	o, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		log.Warn("failed to load order for cancellation notification", zap.Error(err))
		return
	}

	ev := notify.OrderEvent{
		OrderExternalID: o.ExternalID.String(),
		OrderNumber:     o.OrderNumber,
		TotalCents:      o.TotalCents,
		Timestamp:       time.Now().UTC(),
	}
	if err := s.notifier.OrderCancelled(ctx, ev); err != nil {
		log.Warn("cancellation notification failed", zap.Error(err))
	}
}
