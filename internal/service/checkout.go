package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Orchestrator sequences one browsing session through address selection and
// payment. It owns the session's cart ledger; every read and write of the
// ledger goes through it so checkout can react to cart changes.
//
// Backend calls run without holding the lock. While one is in flight the
// session is busy and competing operations fail with CheckoutBusy.
type Orchestrator struct {
	mu sync.Mutex

	sessionID string
	ledger    *domain.Ledger
	token     string
	userID    string
	state     domain.CheckoutSession

	// gen changes on Reset so results of calls started before it are dropped.
	gen uint64
	// cached reports whether an intent may be stored for this session.
	cached bool
	// confirmedIntent is the intent that completed the last checkout.
	confirmedIntent string
	// inFlight is set while a backend call runs. Reset does not clear it, so a
	// reset session cannot start a second call next to the old one.
	inFlight bool

	gateway  PaymentGateway
	intents  repository.IntentCache
	notifier Notifier
	tokens   TokenChecker
	cfg      CheckoutConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates the checkout flow for sessionID around ledger.
func NewOrchestrator(
	sessionID string,
	ledger *domain.Ledger,
	gateway PaymentGateway,
	intents repository.IntentCache,
	notifier Notifier,
	tokens TokenChecker,
	cfg CheckoutConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessionID: sessionID,
		ledger:    ledger,
		state:     domain.NewCheckoutSession(),
		gateway:   gateway,
		intents:   intents,
		notifier:  notifier,
		tokens:    tokens,
		cfg:       cfg,
		logger:    logger.With(slog.String("session_id", sessionID)),
		now:       time.Now,
	}
}

// SetCredentials records the bearer token the shopper presented and the user
// id it carries.
func (o *Orchestrator) SetCredentials(token, userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.token = token
	o.userID = userID
}

// Logout forgets the recorded credentials and starts checkout over. The cart is
// kept; a cached intent belongs to the old user and is dropped.
func (o *Orchestrator) Logout(ctx context.Context) domain.CheckoutSession {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.token, o.userID = "", ""
	o.invalidateIntent(ctx)
	o.gen++
	o.state = domain.NewCheckoutSession()
	o.state.Busy = o.inFlight
	o.logger.InfoContext(ctx, "session logged out")
	return o.state.Clone()
}

// Token returns the bearer token recorded on the session.
func (o *Orchestrator) Token() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.token
}

// State returns a snapshot of the checkout session. Once the confirmation
// display window has passed the session starts over at the cart step.
func (o *Orchestrator) State() domain.CheckoutSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireConfirmation()
	return o.state.Clone()
}

// Cart returns a snapshot of the cart ledger.
func (o *Orchestrator) Cart() domain.CartSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ledger.Snapshot()
}

// MutateCart applies fn to the ledger. fn reports whether it changed the item
// set; a change invalidates any pending payment intent and steps the flow back
// so the shopper pays for what is actually in the cart.
func (o *Orchestrator) MutateCart(ctx context.Context, fn func(*domain.Ledger) bool) (domain.CartSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inFlight {
		return o.ledger.Snapshot(), o.reject(ctx, apperrors.CheckoutBusy())
	}
	if fn(o.ledger) {
		o.onCartChanged(ctx)
	}
	return o.ledger.Snapshot(), nil
}

// RequestCheckout moves the session from cart to address. It fails with
// Unauthenticated when no live token is recorded and with EmptyCart when the
// ledger has no items; the step is unchanged on failure.
func (o *Orchestrator) RequestCheckout(ctx context.Context) (domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireConfirmation()

	if err := o.guard(domain.StepAddress); err != nil {
		return o.state.Clone(), o.reject(ctx, err)
	}
	if !o.tokens.Live(o.token) {
		return o.failed(ctx, apperrors.Unauthenticated())
	}
	if o.ledger.IsEmpty() {
		return o.failed(ctx, apperrors.EmptyCart())
	}

	o.state.LastError = nil
	o.state.PaymentStatus = domain.PaymentIdle
	o.moveTo(ctx, domain.StepAddress)
	return o.state.Clone(), nil
}

// SelectAddress builds the order draft for addr and obtains a payment intent,
// moving the session from address to payment. A pending intent for an
// identical draft is reused instead of creating a second one. On failure the
// session stays on the address step with a failed payment status.
func (o *Orchestrator) SelectAddress(ctx context.Context, addr *domain.Address) (domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireConfirmation()

	if err := o.guard(domain.StepPayment); err != nil {
		return o.state.Clone(), o.reject(ctx, err)
	}
	if addr == nil {
		return o.state.Clone(), o.reject(ctx, apperrors.InvalidInput("a delivery address is required"))
	}
	if missing := addr.Missing(); len(missing) > 0 {
		return o.state.Clone(), o.reject(ctx, apperrors.InvalidInput(fmt.Sprintf("delivery address is missing %v", missing)))
	}
	if !o.tokens.Live(o.token) {
		return o.failed(ctx, apperrors.Unauthenticated())
	}
	if o.ledger.IsEmpty() {
		return o.failed(ctx, apperrors.EmptyCart())
	}

	selected := *addr
	draft := domain.NewOrderDraft(o.ledger.Snapshot(), selected, o.cfg.Currency)
	fingerprint := draft.Fingerprint(o.userID)

	if intent := o.reusableIntent(ctx, fingerprint); intent != nil {
		paymentIntents.WithLabelValues("reused").Inc()
		o.logger.InfoContext(ctx, "reusing pending payment intent",
			slog.String("payment_intent_id", intent.PaymentIntentID),
		)
		o.enterPayment(ctx, &selected, &draft, intent)
		return o.state.Clone(), nil
	}

	o.state.SelectedAddress = &selected
	o.state.PaymentStatus = domain.PaymentProcessing
	o.state.LastError = nil
	gen, token := o.gen, o.token
	o.setInFlight(true)

	o.mu.Unlock()
	callCtx, cancel := withTimeout(ctx, o.cfg.IntentTimeout)
	created, err := o.gateway.CreatePaymentIntent(callCtx, token, draft, fingerprint)
	cancel()
	o.mu.Lock()

	o.setInFlight(false)
	if gen != o.gen {
		return o.state.Clone(), apperrors.Conflict("checkout was reset while the order was being created")
	}

	if err != nil {
		o.state.PaymentStatus = domain.PaymentFailed
		return o.failed(ctx, intentError(err))
	}

	now := o.now()
	intent := &domain.PaymentIntent{
		PaymentIntentID: created.PaymentIntentID,
		ClientSecret:    created.ClientSecret,
		OrderID:         created.OrderID,
		Fingerprint:     fingerprint,
		CreatedAt:       now,
	}
	if o.cfg.IntentTTL > 0 {
		intent.ExpiresAt = now.Add(o.cfg.IntentTTL)
	}
	if err := o.intents.Put(ctx, o.sessionID, intent); err != nil {
		o.logger.ErrorContext(ctx, "failed to cache payment intent",
			slog.String("payment_intent_id", intent.PaymentIntentID),
			slog.String("error", err.Error()),
		)
	} else {
		o.cached = true
	}
	paymentIntents.WithLabelValues("created").Inc()

	o.enterPayment(ctx, &selected, &draft, intent)

	if err := o.notifier.CheckoutInitiated(ctx, o.outcome(domain.PaymentProcessing, "")); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish checkout.initiated event",
			slog.String("error", err.Error()),
		)
	}

	o.logger.InfoContext(ctx, "payment intent ready",
		slog.String("payment_intent_id", intent.PaymentIntentID),
		slog.String("order_id", intent.OrderID),
		slog.String("total_amount", domain.FormatAmount(draft.TotalAmount)),
	)
	return o.state.Clone(), nil
}

// ConfirmPayment asks the food API whether paymentIntentID was charged. Only
// that answer changes the payment status; a success clears the cart and moves
// the session to confirmation. Confirming the intent that already completed
// the session is a no-op, also after the confirmation window has passed.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, paymentIntentID string) (domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireConfirmation()

	if paymentIntentID != "" && paymentIntentID == o.confirmedIntent {
		return o.state.Clone(), nil
	}
	if err := o.guard(domain.StepConfirmation); err != nil {
		return o.state.Clone(), o.reject(ctx, err)
	}
	if paymentIntentID == "" || paymentIntentID != o.state.PaymentIntentID {
		return o.state.Clone(), o.reject(ctx, apperrors.InvalidInput("payment reference does not match the pending payment"))
	}

	o.state.PaymentStatus = domain.PaymentProcessing
	o.state.LastError = nil
	gen, token := o.gen, o.token
	o.setInFlight(true)

	o.mu.Unlock()
	callCtx, cancel := withTimeout(ctx, o.cfg.ConfirmTimeout)
	status, err := o.gateway.ConfirmPayment(callCtx, token, paymentIntentID)
	cancel()
	o.mu.Lock()

	o.setInFlight(false)
	if gen != o.gen {
		return o.state.Clone(), apperrors.Conflict("checkout was reset while the payment was being confirmed")
	}

	if err != nil {
		o.state.PaymentStatus = domain.PaymentFailed
		paymentOutcomes.WithLabelValues("error").Inc()
		return o.failed(ctx, confirmError(err))
	}

	if status != domain.PaymentSucceeded {
		o.state.PaymentStatus = domain.PaymentFailed
		paymentOutcomes.WithLabelValues(string(domain.PaymentFailed)).Inc()
		appErr := apperrors.PaymentDeclined("payment was not completed")
		if err := o.notifier.PaymentFailed(ctx, o.outcome(domain.PaymentFailed, appErr.Message)); err != nil {
			o.logger.ErrorContext(ctx, "failed to publish payment.failed event",
				slog.String("error", err.Error()),
			)
		}
		return o.failed(ctx, appErr)
	}

	o.state.PaymentStatus = domain.PaymentSucceeded
	paymentOutcomes.WithLabelValues(string(domain.PaymentSucceeded)).Inc()
	o.complete(ctx)
	return o.state.Clone(), nil
}

// ReportWidgetError records a failure signalled by the payment widget. It is
// not authoritative: a payment the food API already confirmed stays succeeded.
func (o *Orchestrator) ReportWidgetError(ctx context.Context, message string) (domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireConfirmation()

	if o.state.Step != domain.StepPayment {
		return o.state.Clone(), o.reject(ctx, apperrors.Conflict("no payment is in progress"))
	}
	if o.state.PaymentStatus == domain.PaymentSucceeded {
		return o.state.Clone(), nil
	}

	appErr := apperrors.PaymentDeclined(message)
	o.state.PaymentStatus = domain.PaymentFailed
	o.record(appErr)
	checkoutRejections.WithLabelValues(appErr.Code).Inc()

	if err := o.notifier.PaymentFailed(ctx, o.outcome(domain.PaymentFailed, appErr.Message)); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish payment.failed event",
			slog.String("error", err.Error()),
		)
	}
	o.logger.WarnContext(ctx, "payment widget reported an error",
		slog.String("payment_intent_id", o.state.PaymentIntentID),
		slog.String("message", appErr.Message),
	)
	return o.state.Clone(), nil
}

// Back steps from payment to address or from address to cart. Leaving the
// payment step keeps the pending intent cached for reuse.
func (o *Orchestrator) Back(ctx context.Context) (domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireConfirmation()

	if o.inFlight {
		return o.state.Clone(), o.reject(ctx, apperrors.CheckoutBusy())
	}

	switch o.state.Step {
	case domain.StepPayment:
		o.dropDraft()
		o.moveTo(ctx, domain.StepAddress)
	case domain.StepAddress:
		o.dropDraft()
		o.state.SelectedAddress = nil
		o.moveTo(ctx, domain.StepCart)
	default:
		return o.state.Clone(), o.reject(ctx, apperrors.InvalidTransition(string(o.state.Step), "previous step"))
	}
	o.state.LastError = nil
	return o.state.Clone(), nil
}

// Reset discards the checkout attempt and starts over at the cart step. The
// cart and any cached intent are kept. Results of backend calls still in
// flight are dropped, and the session stays busy until they return.
func (o *Orchestrator) Reset(ctx context.Context) domain.CheckoutSession {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Step != domain.StepCart {
		checkoutTransitions.WithLabelValues(string(o.state.Step), string(domain.StepCart)).Inc()
	}
	o.gen++
	o.state = domain.NewCheckoutSession()
	o.state.Busy = o.inFlight
	o.logger.DebugContext(ctx, "checkout reset")
	return o.state.Clone()
}

// guard checks that the session may move to the target step now.
func (o *Orchestrator) guard(to domain.Step) *apperrors.AppError {
	if o.inFlight {
		return apperrors.CheckoutBusy()
	}
	if !domain.CanTransition(o.state.Step, to) {
		return apperrors.InvalidTransition(string(o.state.Step), string(to))
	}
	return nil
}

func (o *Orchestrator) setInFlight(v bool) {
	o.inFlight = v
	o.state.Busy = v
}

func (o *Orchestrator) moveTo(ctx context.Context, to domain.Step) {
	from := o.state.Step
	o.state.Step = to
	checkoutTransitions.WithLabelValues(string(from), string(to)).Inc()
	o.logger.DebugContext(ctx, "checkout step changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

// reject reports err without recording it on the session.
func (o *Orchestrator) reject(ctx context.Context, err *apperrors.AppError) error {
	checkoutRejections.WithLabelValues(err.Code).Inc()
	o.logger.DebugContext(ctx, "checkout operation rejected",
		slog.String("code", err.Code),
		slog.String("step", string(o.state.Step)),
	)
	return err
}

// failed records err on the session and returns the snapshot that carries it.
func (o *Orchestrator) failed(ctx context.Context, err *apperrors.AppError) (domain.CheckoutSession, error) {
	e := o.fail(ctx, err)
	return o.state.Clone(), e
}

// fail records err on the session as the user-visible error and returns it.
func (o *Orchestrator) fail(ctx context.Context, err *apperrors.AppError) error {
	o.record(err)
	checkoutRejections.WithLabelValues(err.Code).Inc()
	o.logger.WarnContext(ctx, "checkout step failed",
		slog.String("code", err.Code),
		slog.String("step", string(o.state.Step)),
		slog.String("error", err.Error()),
	)
	return err
}

func (o *Orchestrator) record(err *apperrors.AppError) {
	o.state.LastError = &domain.SessionError{Code: err.Code, Message: err.Message}
}

func (o *Orchestrator) reusableIntent(ctx context.Context, fingerprint string) *domain.PaymentIntent {
	if !o.cached {
		return nil
	}
	intent, err := o.intents.Get(ctx, o.sessionID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			o.logger.WarnContext(ctx, "failed to read cached payment intent",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	if intent.Fingerprint != fingerprint || intent.Expired(o.now()) {
		return nil
	}
	return intent
}

func (o *Orchestrator) enterPayment(ctx context.Context, addr *domain.Address, draft *domain.OrderDraft, intent *domain.PaymentIntent) {
	o.state.SelectedAddress = addr
	o.state.OrderDraft = draft
	o.state.PaymentIntentID = intent.PaymentIntentID
	o.state.ClientSecret = intent.ClientSecret
	o.state.OrderID = intent.OrderID
	o.state.PaymentStatus = domain.PaymentProcessing
	o.state.LastError = nil
	o.moveTo(ctx, domain.StepPayment)
}

func (o *Orchestrator) dropDraft() {
	o.state.OrderDraft = nil
	o.state.OrderID = ""
	o.state.ClearIntent()
	o.state.PaymentStatus = domain.PaymentIdle
}

// complete runs the payment to confirmation side effects in order: clear the
// cart, drop the transient payment fields, then notify.
func (o *Orchestrator) complete(ctx context.Context) {
	outcome := o.outcome(domain.PaymentSucceeded, "")

	o.ledger.Clear()
	o.confirmedIntent = o.state.PaymentIntentID
	o.state.ClearIntent()
	now := o.now()
	o.state.ConfirmedAt = &now
	o.moveTo(ctx, domain.StepConfirmation)

	o.invalidateIntent(ctx)

	if err := o.notifier.CheckoutCompleted(ctx, outcome); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish checkout.completed event",
			slog.String("order_id", outcome.OrderID),
			slog.String("error", err.Error()),
		)
	}

	o.logger.InfoContext(ctx, "checkout completed",
		slog.String("order_id", outcome.OrderID),
		slog.String("payment_intent_id", outcome.PaymentIntentID),
		slog.String("total_amount", domain.FormatAmount(outcome.Draft.TotalAmount)),
	)
}

func (o *Orchestrator) outcome(status domain.PaymentStatus, reason string) domain.CheckoutOutcome {
	out := domain.CheckoutOutcome{
		SessionID:       o.sessionID,
		UserID:          o.userID,
		OrderID:         o.state.OrderID,
		PaymentIntentID: o.state.PaymentIntentID,
		Status:          status,
		Reason:          reason,
		At:              o.now(),
	}
	if o.state.OrderDraft != nil {
		out.Draft = *o.state.OrderDraft
	}
	return out
}

// onCartChanged keeps checkout consistent with an edited cart.
func (o *Orchestrator) onCartChanged(ctx context.Context) {
	o.invalidateIntent(ctx)

	switch o.state.Step {
	case domain.StepAddress, domain.StepPayment:
		if o.ledger.IsEmpty() {
			o.dropDraft()
			o.state.SelectedAddress = nil
			o.moveTo(ctx, domain.StepCart)
			return
		}
		if o.state.Step == domain.StepPayment {
			o.dropDraft()
			o.moveTo(ctx, domain.StepAddress)
		}
	}
}

func (o *Orchestrator) invalidateIntent(ctx context.Context) {
	if !o.cached {
		return
	}
	if err := o.intents.Invalidate(ctx, o.sessionID); err != nil {
		o.logger.ErrorContext(ctx, "failed to invalidate cached payment intent",
			slog.String("error", err.Error()),
		)
		return
	}
	o.cached = false
}

// expireConfirmation ends the confirmation display window.
func (o *Orchestrator) expireConfirmation() {
	if o.state.Step != domain.StepConfirmation || o.state.ConfirmedAt == nil {
		return
	}
	if o.now().Before(o.state.ConfirmedAt.Add(o.cfg.ConfirmationWindow)) {
		return
	}
	checkoutTransitions.WithLabelValues(string(domain.StepConfirmation), string(domain.StepCart)).Inc()
	o.state = domain.NewCheckoutSession()
}

// intentError classifies a failed create-intent call.
func intentError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && (appErr.Code == "NETWORK_ERROR" || appErr.Code == "UNAUTHENTICATED" || appErr.Code == "SERVICE_UNAVAILABLE") {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NetworkError(err)
	}
	failed := apperrors.IntentCreationFailed(err)
	if errors.As(err, &appErr) && appErr.Message != "" {
		failed.Message = appErr.Message
	}
	return failed
}

// confirmError classifies a failed confirm-payment call.
func confirmError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case "NETWORK_ERROR", "UNAUTHENTICATED", "SERVICE_UNAVAILABLE", "PAYMENT_DECLINED":
			return appErr
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NetworkError(err)
	}
	failed := apperrors.PaymentConfirmationFailed(err)
	if errors.As(err, &appErr) && appErr.Message != "" {
		failed.Message = appErr.Message
	}
	return failed
}
