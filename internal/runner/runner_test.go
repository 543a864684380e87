package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sentineld/internal/domain"
	"sentineld/internal/guard"
	"sentineld/internal/insight"
	"sentineld/internal/ledger"
	"sentineld/internal/ledger/stub"
	"sentineld/internal/notify"
	"sentineld/internal/paygate"
	"sentineld/internal/storage/memory"
)

const testTermsBody = `{"amount": 0.0001, "recipient": "oracle", "token": "A", "message": "fee"}`

type fixture struct {
	runner    *Runner
	ledger    *stub.Ledger
	sentinels *memory.SentinelStore
	activity  *memory.ActivityStore
	insights  *memory.InsightStore
	samples   *memory.PriceSampleStore
	generator *insight.StaticGenerator
	notified  *recordingNotifier
}

// recordingNotifier captures alerts for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	done   chan struct{}
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, alert notify.Alert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, alert)
	n.mu.Unlock()
	select {
	case n.done <- struct{}{}:
	default:
	}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// priceServer serves a 402-gated price endpoint.
func priceServer(price float64) *httptest.Server {
	body := fmt.Sprintf(`{"price": %f}`, price)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(paygate.ProofHeader) == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(testTermsBody))
			return
		}
		w.Write([]byte(body))
	}))
}

func newFixture(t *testing.T, priceURL string) *fixture {
	t.Helper()

	lc := stub.New()
	f := &fixture{
		ledger:    lc,
		sentinels: memory.NewSentinelStore(),
		activity:  memory.NewActivityStore(),
		insights:  memory.NewInsightStore(),
		samples:   memory.NewPriceSampleStore(),
		generator: &insight.StaticGenerator{},
		notified:  &recordingNotifier{done: make(chan struct{}, 16)},
	}
	logger := log.New(io.Discard, "", 0)
	f.runner = New(Options{
		Fetcher:       paygate.NewClient(lc),
		Guard:         guard.New(guard.Options{Ledger: lc, Logger: logger}),
		SentinelStore: f.sentinels,
		ActivityStore: f.activity,
		InsightStore:  f.insights,
		SampleStore:   f.samples,
		Generator:     f.generator,
		Notifier:      f.notified,
		PriceURL:      priceURL,
		CheckInterval: 10 * time.Millisecond,
		Logger:        logger,
	})
	return f
}

func monitoringSentinel(threshold float64, condition domain.Condition) *domain.Sentinel {
	return &domain.Sentinel{
		ID:                 "s-1",
		Owner:              "owner-1",
		WalletAddress:      "wallet-1",
		SigningCredential:  "wallet-1", // the stub ledger keys transfers by credential
		Threshold:          threshold,
		Condition:          condition,
		PaymentMethod:      domain.PaymentTokenA,
		NotificationTarget: "https://example.test/hook",
		Network:            domain.NetworkTest,
		Status:             domain.StatusMonitoring,
	}
}

func TestRunCheck_SuccessRecordsActivity(t *testing.T) {
	srv := priceServer(150.0)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 1.0)

	sentinel := monitoringSentinel(100.0, domain.ConditionAbove)
	f.sentinels.Insert(context.Background(), sentinel)

	activity, err := f.runner.RunCheck(context.Background(), sentinel)
	if err != nil {
		t.Fatalf("RunCheck failed: %v", err)
	}

	if activity.Status != domain.ActivitySuccess {
		t.Errorf("expected success, got %s", activity.Status)
	}
	if activity.Price != 150.0 {
		t.Errorf("expected price 150, got %f", activity.Price)
	}
	if !activity.Triggered {
		t.Error("150 > 100 should trigger")
	}
	if activity.Cost != 0.0001 {
		t.Errorf("expected cost 0.0001, got %f", activity.Cost)
	}
	if activity.TransactionReceipt == nil {
		t.Error("expected a receipt on a paid check")
	}
	if f.ledger.TransferCount() != 1 {
		t.Errorf("expected exactly 1 transfer, got %d", f.ledger.TransferCount())
	}
	if f.activity.Len() != 1 {
		t.Errorf("expected 1 recorded activity, got %d", f.activity.Len())
	}

	// Notification is fired asynchronously.
	select {
	case <-f.notified.done:
	case <-time.After(time.Second):
		t.Fatal("notification never fired")
	}
	if f.notified.count() != 1 {
		t.Errorf("expected 1 alert, got %d", f.notified.count())
	}
}

func TestRunCheck_ThresholdIsStrict(t *testing.T) {
	srv := priceServer(100.0)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 1.0)

	for _, condition := range []domain.Condition{domain.ConditionAbove, domain.ConditionBelow} {
		sentinel := monitoringSentinel(100.0, condition)
		activity, err := f.runner.RunCheck(context.Background(), sentinel)
		if err != nil {
			t.Fatalf("RunCheck failed: %v", err)
		}
		if activity.Triggered {
			t.Errorf("price equal to threshold must not trigger (%s)", condition)
		}
	}
	if f.notified.count() != 0 {
		t.Errorf("expected no alerts, got %d", f.notified.count())
	}
}

func TestRunCheck_UnderfundedWalletRefusedBeforePayment(t *testing.T) {
	srv := priceServer(150.0)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	// Token balance covers the fee but sits below the monitoring minimum.
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 0.005)

	sentinel := monitoringSentinel(100.0, domain.ConditionAbove)
	f.sentinels.Insert(context.Background(), sentinel)
	f.runner.Scheduler().Start(sentinel.ID)

	activity, err := f.runner.RunCheck(context.Background(), sentinel)
	if err != nil {
		t.Fatalf("RunCheck failed: %v", err)
	}

	if f.ledger.TransferCount() != 0 {
		t.Errorf("underfunded wallet must never pay, got %d transfers", f.ledger.TransferCount())
	}
	if activity.Status != domain.ActivityFailed {
		t.Errorf("expected failed activity, got %s", activity.Status)
	}
	if activity.ErrorMessage == nil || !strings.Contains(*activity.ErrorMessage, "Insufficient") {
		t.Errorf("expected an insufficient-funds message, got %v", activity.ErrorMessage)
	}
	if f.activity.Len() != 1 {
		t.Errorf("expected exactly 1 activity, got %d", f.activity.Len())
	}

	got, _ := f.sentinels.GetByID(context.Background(), sentinel.ID)
	if got.Status != domain.StatusUnfunded {
		t.Errorf("expected unfunded after refused admission, got %s", got.Status)
	}
	if f.runner.Scheduler().Running(sentinel.ID) {
		t.Error("timer must be cancelled after refused admission")
	}
}

func TestRunCheck_InsufficientFundsDrivesUnfunded(t *testing.T) {
	srv := priceServer(150.0)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	// The wallet clears admission but the transfer itself fails, as when a
	// concurrent spend drains the balance between the read and the payment.
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 1.0)
	f.ledger.TransferErr = ledger.ErrInsufficientFunds

	sentinel := monitoringSentinel(100.0, domain.ConditionAbove)
	f.sentinels.Insert(context.Background(), sentinel)
	f.runner.Scheduler().Start(sentinel.ID)

	activity, err := f.runner.RunCheck(context.Background(), sentinel)
	if err != nil {
		t.Fatalf("RunCheck failed: %v", err)
	}

	if activity.Status != domain.ActivityFailed {
		t.Errorf("expected failed activity, got %s", activity.Status)
	}
	if activity.Cost != DefaultCheckFee {
		t.Errorf("failed check records the attempted fee, got %f", activity.Cost)
	}
	if activity.ErrorMessage == nil {
		t.Error("expected an error message on the failed activity")
	}

	got, _ := f.sentinels.GetByID(context.Background(), sentinel.ID)
	if got.Status != domain.StatusUnfunded {
		t.Errorf("expected unfunded after failed payment, got %s", got.Status)
	}
	if f.runner.Scheduler().Running(sentinel.ID) {
		t.Error("timer must be cancelled after insufficient funds")
	}
}

func TestRunCheck_TransientFailureKeepsMonitoring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 1.0)
	sentinel := monitoringSentinel(100.0, domain.ConditionAbove)
	f.sentinels.Insert(context.Background(), sentinel)
	f.runner.Scheduler().Start(sentinel.ID)

	activity, err := f.runner.RunCheck(context.Background(), sentinel)
	if err != nil {
		t.Fatalf("RunCheck failed: %v", err)
	}
	if activity.Status != domain.ActivityFailed {
		t.Errorf("expected failed activity, got %s", activity.Status)
	}

	got, _ := f.sentinels.GetByID(context.Background(), sentinel.ID)
	if got.Status != domain.StatusMonitoring {
		t.Errorf("transient failures must not change status, got %s", got.Status)
	}
	if !f.runner.Scheduler().Running(sentinel.ID) {
		t.Error("timer must keep running after a transient failure")
	}
}

func TestRunCheck_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(paygate.ProofHeader) == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(testTermsBody))
			return
		}
		<-release // hold the paid request open
		w.Write([]byte(`{"price": 150.0}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 1.0)
	sentinel := monitoringSentinel(100.0, domain.ConditionAbove)
	f.sentinels.Insert(context.Background(), sentinel)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := f.runner.RunCheck(context.Background(), sentinel); err != nil {
			t.Errorf("RunCheck failed: %v", err)
		}
	}()

	// Wait until the first check holds the slot (it paid already).
	deadline := time.After(2 * time.Second)
	for f.ledger.TransferCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first check never reached the paid request")
		case <-time.After(5 * time.Millisecond):
		}
	}

	activity, err := f.runner.RunCheck(context.Background(), sentinel)
	if err != nil {
		t.Fatalf("overlapping RunCheck errored: %v", err)
	}
	if activity != nil {
		t.Error("overlapping check must be dropped, not recorded")
	}
	if f.ledger.TransferCount() != 1 {
		t.Errorf("overlapping check must not pay, got %d transfers", f.ledger.TransferCount())
	}

	close(release)
	wg.Wait()

	if f.activity.Len() != 1 {
		t.Errorf("expected exactly 1 activity, got %d", f.activity.Len())
	}
}

func TestRunCheck_InsightDebounce(t *testing.T) {
	srv := priceServer(50.0) // below threshold, no alerts
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 1.0)
	sentinel := monitoringSentinel(100.0, domain.ConditionAbove)
	f.sentinels.Insert(context.Background(), sentinel)

	// First successful check: no insight exists, so one is generated.
	if _, err := f.runner.RunCheck(context.Background(), sentinel); err != nil {
		t.Fatalf("RunCheck failed: %v", err)
	}
	if f.insights.Len() != 1 {
		t.Fatalf("expected first insight, got %d", f.insights.Len())
	}
	if f.generator.Calls != 1 {
		t.Errorf("expected 1 generator call, got %d", f.generator.Calls)
	}

	// Second and third checks stay under the debounce threshold. Timestamps
	// are millisecond-granular, so space the checks out.
	time.Sleep(2 * time.Millisecond)
	f.runner.RunCheck(context.Background(), sentinel)
	time.Sleep(2 * time.Millisecond)
	f.runner.RunCheck(context.Background(), sentinel)
	if f.insights.Len() != 1 {
		t.Errorf("expected no new insight under debounce, got %d", f.insights.Len())
	}

	// Third activity after the insight crosses the threshold.
	time.Sleep(2 * time.Millisecond)
	f.runner.RunCheck(context.Background(), sentinel)
	if f.insights.Len() != 2 {
		t.Errorf("expected second insight after 3 activities, got %d", f.insights.Len())
	}
}

func TestRunCheck_BadPriceBodyIsFailedActivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(paygate.ProofHeader) == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(testTermsBody))
			return
		}
		w.Write([]byte(`{"data": "no price here"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 1.0)
	sentinel := monitoringSentinel(100.0, domain.ConditionAbove)

	activity, err := f.runner.RunCheck(context.Background(), sentinel)
	if err != nil {
		t.Fatalf("RunCheck failed: %v", err)
	}
	if activity.Status != domain.ActivityFailed {
		t.Errorf("missing price must record a failed activity, got %s", activity.Status)
	}
	if f.activity.Len() != 1 {
		t.Errorf("expected exactly 1 activity, got %d", f.activity.Len())
	}

	// The fee settled before the body failed to parse, so the record must
	// carry the real cost and receipt, not the configured default.
	if activity.Cost != 0.0001 {
		t.Errorf("expected actual paid cost 0.0001, got %f", activity.Cost)
	}
	if activity.TransactionReceipt == nil {
		t.Error("expected the settlement receipt on the failed activity")
	}
}

func TestRunCheck_RejectedPaymentKeepsPaidCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Demand payment on every request, proof or not.
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(testTermsBody))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.ledger.Fund("wallet-1", 1.0, domain.PaymentTokenA, 1.0)
	sentinel := monitoringSentinel(100.0, domain.ConditionAbove)

	activity, err := f.runner.RunCheck(context.Background(), sentinel)
	if err != nil {
		t.Fatalf("RunCheck failed: %v", err)
	}

	if f.ledger.TransferCount() != 1 {
		t.Fatalf("expected exactly 1 transfer, got %d", f.ledger.TransferCount())
	}
	if activity.Status != domain.ActivityFailed {
		t.Errorf("expected failed activity, got %s", activity.Status)
	}
	if activity.Cost != 0.0001 {
		t.Errorf("expected the fee actually transferred, got %f", activity.Cost)
	}
	if activity.TransactionReceipt == nil {
		t.Error("expected the settlement receipt despite the rejection")
	}
}
