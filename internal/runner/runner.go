// Package runner drives the monitoring loop: one priced check per sentinel
// per interval, threshold evaluation, notification, and an activity record
// for every attempt.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentineld/internal/domain"
	"sentineld/internal/guard"
	"sentineld/internal/insight"
	"sentineld/internal/ledger"
	"sentineld/internal/notify"
	"sentineld/internal/observability"
	"sentineld/internal/paygate"
	"sentineld/internal/storage"
)

// Defaults for the check loop.
const (
	// DefaultCheckFee is the expected per-check fee, recorded as the
	// attempted cost on failed checks. Configured per network.
	DefaultCheckFee = 0.0001

	// DefaultInsightDebounce is the minimum number of activities after the
	// latest insight before another generation is attempted.
	DefaultInsightDebounce = 3

	// DefaultSampleWindow is how many recent price samples feed one insight.
	DefaultSampleWindow = 20
)

// Runner executes priced checks and records their outcomes.
type Runner struct {
	fetcher   *paygate.Client
	admission *guard.Guard
	sentinels storage.SentinelStore
	activity  storage.ActivityStore
	insights  storage.InsightStore
	samples   storage.PriceSampleStore
	generator insight.Generator
	notifier  notify.Notifier
	confirmer ledger.ReceiptSubscriber
	scheduler *Scheduler

	priceURL        string
	checkFee        float64
	insightDebounce int64
	sampleWindow    int
	logger          *log.Logger

	// inFlight guards at-most-one-concurrent-check-per-sentinel.
	inFlightMu sync.Mutex
	inFlight   map[string]struct{}
}

// Options contains configuration for creating a Runner.
type Options struct {
	Fetcher *paygate.Client

	// Guard admits or refuses each check before any request is made.
	Guard *guard.Guard

	SentinelStore storage.SentinelStore
	ActivityStore storage.ActivityStore
	InsightStore  storage.InsightStore
	SampleStore   storage.PriceSampleStore
	Generator     insight.Generator
	Notifier      notify.Notifier

	// Confirmer, when non-nil, tracks settlement finality of fee transfers
	// over the receipt stream.
	Confirmer ledger.ReceiptSubscriber

	PriceURL        string
	CheckInterval   time.Duration // default DefaultCheckInterval
	CheckFee        float64       // default DefaultCheckFee
	InsightDebounce int64         // default DefaultInsightDebounce
	SampleWindow    int           // default DefaultSampleWindow
	Logger          *log.Logger

	// BaseCtx bounds all scheduled ticks; defaults to context.Background().
	BaseCtx context.Context
}

// New creates a Runner and its scheduler.
func New(opts Options) *Runner {
	checkFee := opts.CheckFee
	if checkFee == 0 {
		checkFee = DefaultCheckFee
	}
	debounce := opts.InsightDebounce
	if debounce == 0 {
		debounce = DefaultInsightDebounce
	}
	window := opts.SampleWindow
	if window == 0 {
		window = DefaultSampleWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	baseCtx := opts.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	r := &Runner{
		fetcher:         opts.Fetcher,
		admission:       opts.Guard,
		sentinels:       opts.SentinelStore,
		activity:        opts.ActivityStore,
		insights:        opts.InsightStore,
		samples:         opts.SampleStore,
		generator:       opts.Generator,
		notifier:        opts.Notifier,
		confirmer:       opts.Confirmer,
		priceURL:        opts.PriceURL,
		checkFee:        checkFee,
		insightDebounce: debounce,
		sampleWindow:    window,
		logger:          logger,
		inFlight:        make(map[string]struct{}),
	}
	r.scheduler = NewScheduler(baseCtx, opts.CheckInterval, r.tick, logger)
	return r
}

// Scheduler exposes the timer table for lifecycle actions and tests.
func (r *Runner) Scheduler() *Scheduler {
	return r.scheduler
}

// tick is the scheduler callback: reload the sentinel and run one check.
func (r *Runner) tick(ctx context.Context, sentinelID string) {
	sentinel, err := r.sentinels.GetByID(ctx, sentinelID)
	if err != nil {
		r.logger.Printf("tick: sentinel %s not loadable, stopping: %v", sentinelID, err)
		r.scheduler.Stop(sentinelID)
		return
	}
	if sentinel.Status != domain.StatusMonitoring {
		return
	}
	if _, err := r.RunCheck(ctx, sentinel); err != nil {
		// RunCheck converts every failure into an activity; an error here
		// means the record itself could not be written.
		r.logger.Printf("tick: check for sentinel %s failed to record: %v", sentinelID, err)
	}
}

// priceBody is the wire form of the priced resource's response.
type priceBody struct {
	Price *float64 `json:"price"`
}

// RunCheck executes one priced check and writes exactly one activity.
// The wallet must clear the funding minimums before any request goes out;
// an underfunded sentinel records a failed activity and goes unfunded
// without paying. A tick arriving while a check for the same sentinel is
// in flight is dropped without charging or recording anything.
func (r *Runner) RunCheck(ctx context.Context, sentinel *domain.Sentinel) (*domain.Activity, error) {
	if !r.acquire(sentinel.ID) {
		observability.RecordTickSkipped()
		return nil, nil
	}
	defer r.release(sentinel.ID)

	started := time.Now()

	funding, err := r.admission.Evaluate(ctx, sentinel)
	if err != nil {
		// Evaluate degrades unreadable balances to zero; an error here is
		// unexpected, so fall through and let the ledger settle it.
		r.logger.Printf("funding evaluation for sentinel %s failed: %v", sentinel.ID, err)
	} else if !funding.IsFunded {
		activity := r.failedActivity(sentinel, fmt.Errorf(
			"%w: wallet holds %.6f gas / %.6f token, below the monitoring minimums",
			ledger.ErrInsufficientFunds, funding.Gas, funding.Token), nil)
		observability.RecordCheck(string(activity.Status), time.Since(started).Seconds())
		if err := r.activity.Append(ctx, activity); err != nil {
			return activity, fmt.Errorf("append activity: %w", err)
		}
		r.handleInsufficientFunds(ctx, sentinel)
		return activity, nil
	}

	body, outcome, fetchErr := r.fetcher.FetchPaid(ctx, paygate.Request{URL: r.priceURL}, sentinel.SigningCredential, sentinel.PaymentMethod)

	var activity *domain.Activity
	if fetchErr != nil {
		activity = r.failedActivity(sentinel, fetchErr, outcome)
	} else {
		var parseErr error
		activity, parseErr = r.successActivity(ctx, sentinel, body, outcome)
		if parseErr != nil {
			activity = r.failedActivity(sentinel, parseErr, outcome)
			fetchErr = parseErr
		}
	}

	observability.RecordCheck(string(activity.Status), time.Since(started).Seconds())
	if err := r.activity.Append(ctx, activity); err != nil {
		return activity, fmt.Errorf("append activity: %w", err)
	}

	if fetchErr != nil && errors.Is(fetchErr, ledger.ErrInsufficientFunds) {
		r.handleInsufficientFunds(ctx, sentinel)
	}

	if activity.Status == domain.ActivitySuccess {
		r.recordSampleAndInsight(ctx, sentinel, activity)
	}

	return activity, nil
}

// successActivity parses the price, evaluates the threshold and fires the
// notification. Notification failures are logged, never propagated.
func (r *Runner) successActivity(ctx context.Context, sentinel *domain.Sentinel, body []byte, outcome *paygate.Outcome) (*domain.Activity, error) {
	var parsed priceBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse price body: %v", paygate.ErrResource, err)
	}
	if parsed.Price == nil {
		return nil, fmt.Errorf("%w: response missing price", paygate.ErrResource)
	}
	price := *parsed.Price

	triggered := sentinel.ShouldTrigger(price)
	now := time.Now().UnixMilli()

	activity := &domain.Activity{
		ID:            uuid.NewString(),
		SentinelID:    sentinel.ID,
		Owner:         sentinel.Owner,
		Price:         price,
		Cost:          outcome.Cost,
		Triggered:     triggered,
		Status:        domain.ActivitySuccess,
		PaymentMethod: sentinel.PaymentMethod,
		CreatedAt:     now,
	}
	if outcome.Receipt != nil {
		receiptID := outcome.Receipt.ID
		settlement := outcome.Receipt.SettlementTimeMs
		activity.TransactionReceipt = &receiptID
		activity.SettlementTimeMs = &settlement
		observability.RecordPayment(outcome.Cost, settlement)
		r.trackConfirmation(receiptID)
	}

	if triggered {
		observability.RecordAlert()
		alert := notify.Alert{
			Title:        "Sentinel alert",
			SentinelID:   sentinel.ID,
			CurrentValue: price,
			Threshold:    sentinel.Threshold,
			Condition:    sentinel.Condition,
			Timestamp:    now,
			Message:      fmt.Sprintf("price %.6f crossed %s %.6f", price, sentinel.Condition, sentinel.Threshold),
		}
		go func(target string) {
			nctx, cancel := context.WithTimeout(context.Background(), notify.DefaultWebhookTimeout)
			defer cancel()
			if err := r.notifier.Notify(nctx, target, alert); err != nil {
				observability.RecordNotificationFailure()
				r.logger.Printf("notification for sentinel %s failed: %v", sentinel.ID, err)
			}
		}(sentinel.NotificationTarget)
	}

	return activity, nil
}

// confirmWait bounds how long a receipt subscription is held open.
const confirmWait = 60 * time.Second

// trackConfirmation watches the receipt stream for settlement finality.
// Best effort: the activity is already recorded, this only feeds metrics.
func (r *Runner) trackConfirmation(receiptID string) {
	if r.confirmer == nil {
		return
	}
	ch, err := r.confirmer.Subscribe(receiptID)
	if err != nil {
		r.logger.Printf("subscribe receipt %s failed: %v", receiptID, err)
		return
	}
	go func() {
		select {
		case conf, ok := <-ch:
			switch {
			case !ok:
				observability.RecordConfirmation("stream_closed")
			case conf.Err != nil:
				observability.RecordConfirmation("failed")
				r.logger.Printf("settlement %s failed on ledger: %v", receiptID, conf.Err)
			default:
				observability.RecordConfirmation("confirmed")
			}
		case <-time.After(confirmWait):
			observability.RecordConfirmation("timeout")
		}
	}()
}

// failedActivity builds the record for a check that did not deliver data.
// When the fee already settled before the failure, the activity carries the
// real cost and receipt so the log stays auditable; otherwise the configured
// fee is recorded as the attempted cost.
func (r *Runner) failedActivity(sentinel *domain.Sentinel, cause error, outcome *paygate.Outcome) *domain.Activity {
	msg := userMessage(cause)
	observability.RecordPaymentFailure(failureReason(cause))
	activity := &domain.Activity{
		ID:            uuid.NewString(),
		SentinelID:    sentinel.ID,
		Owner:         sentinel.Owner,
		Price:         0,
		Cost:          r.checkFee,
		Status:        domain.ActivityFailed,
		PaymentMethod: sentinel.PaymentMethod,
		ErrorMessage:  &msg,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if outcome != nil && outcome.Paid {
		activity.Cost = outcome.Cost
		if outcome.Receipt != nil {
			receiptID := outcome.Receipt.ID
			settlement := outcome.Receipt.SettlementTimeMs
			activity.TransactionReceipt = &receiptID
			activity.SettlementTimeMs = &settlement
			observability.RecordPayment(outcome.Cost, settlement)
			r.trackConfirmation(receiptID)
		}
	}
	return activity
}

// handleInsufficientFunds drives the sentinel to unfunded and cancels its
// timer. No further ticks until the owner funds and resumes.
func (r *Runner) handleInsufficientFunds(ctx context.Context, sentinel *domain.Sentinel) {
	r.logger.Printf("sentinel %s out of funds, pausing monitoring", sentinel.ID)
	if err := r.sentinels.UpdateStatus(ctx, sentinel.ID, domain.StatusUnfunded); err != nil {
		r.logger.Printf("mark sentinel %s unfunded failed: %v", sentinel.ID, err)
	}
	r.scheduler.Stop(sentinel.ID)
}

// recordSampleAndInsight stores the observed price and, when the debounce
// rule allows, generates a fresh insight over the recent sample window.
func (r *Runner) recordSampleAndInsight(ctx context.Context, sentinel *domain.Sentinel, activity *domain.Activity) {
	sample := &domain.PriceSample{
		SentinelID:  sentinel.ID,
		TimestampMs: activity.CreatedAt,
		Value:       activity.Price,
	}
	if err := r.samples.Append(ctx, sample); err != nil {
		r.logger.Printf("record price sample for sentinel %s failed: %v", sentinel.ID, err)
	}

	should, err := storage.ShouldGenerateInsight(ctx, r.activity, r.insights, sentinel.ID, r.insightDebounce)
	if err != nil {
		r.logger.Printf("insight eligibility for sentinel %s failed: %v", sentinel.ID, err)
		return
	}
	if !should {
		return
	}

	recent, err := r.samples.Recent(ctx, sentinel.ID, r.sampleWindow)
	if err != nil {
		r.logger.Printf("load samples for sentinel %s failed: %v", sentinel.ID, err)
		return
	}

	analysis := r.generator.Generate(ctx, recent)
	record := &domain.Insight{
		ID:              uuid.NewString(),
		SentinelID:      sentinel.ID,
		Owner:           sentinel.Owner,
		Text:            analysis.Text,
		ConfidenceScore: analysis.ConfidenceScore,
		Sentiment:       analysis.Sentiment,
		Cost:            analysis.Cost,
		CreatedAt:       time.Now().UnixMilli(),
	}
	if err := r.insights.Append(ctx, record); err != nil {
		r.logger.Printf("append insight for sentinel %s failed: %v", sentinel.ID, err)
		return
	}
	observability.RecordInsightGenerated()
}

// acquire takes the in-flight slot for a sentinel.
func (r *Runner) acquire(sentinelID string) bool {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if _, busy := r.inFlight[sentinelID]; busy {
		return false
	}
	r.inFlight[sentinelID] = struct{}{}
	return true
}

// release frees the in-flight slot.
func (r *Runner) release(sentinelID string) {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	delete(r.inFlight, sentinelID)
}

// userMessage renders a stored, human-readable failure detail.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "Insufficient funds: top up the wallet and resume monitoring"
	case errors.Is(err, ledger.ErrAccountMissing):
		return "Token account missing: fund the wallet to initialize it"
	case errors.Is(err, paygate.ErrPaymentRejected):
		return "Payment proof rejected by the price resource"
	case errors.Is(err, paygate.ErrInvalidPaymentTerms):
		return "Price resource sent invalid payment terms"
	case errors.Is(err, ledger.ErrNetworkError):
		return "Network error: will retry on the next check"
	default:
		return err.Error()
	}
}

// failureReason maps an error to a low-cardinality metric label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrAccountMissing):
		return "account_missing"
	case errors.Is(err, paygate.ErrPaymentRejected):
		return "payment_rejected"
	case errors.Is(err, paygate.ErrInvalidPaymentTerms):
		return "invalid_terms"
	case errors.Is(err, ledger.ErrNetworkError):
		return "network"
	default:
		return "resource"
	}
}
