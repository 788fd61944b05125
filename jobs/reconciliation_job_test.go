package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"luxe-escrow-server/config"
	"luxe-escrow-server/services"
)

var ErrMockReconcile = errors.New("mock reconcile error")

type MockReconciler struct {
	mu    sync.Mutex
	calls int
	args  []interface{}

	ResumeStaleOperationsFunc func(ctx context.Context, olderThan time.Duration, maxAttempts, limit int) (services.ReconcileSummary, error)
}

func (m *MockReconciler) ResumeStaleOperations(ctx context.Context, olderThan time.Duration, maxAttempts, limit int) (services.ReconcileSummary, error) {
	m.mu.Lock()
	m.calls++
	m.args = []interface{}{olderThan, maxAttempts, limit}
	m.mu.Unlock()
	if m.ResumeStaleOperationsFunc != nil {
		return m.ResumeStaleOperationsFunc(ctx, olderThan, maxAttempts, limit)
	}
	return services.ReconcileSummary{}, nil
}

func (m *MockReconciler) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testReconcileConfig() config.ReconcileConfig {
	return config.ReconcileConfig{
		Interval:    10 * time.Millisecond,
		StaleAfter:  2 * time.Minute,
		MaxAttempts: 5,
		BatchSize:   25,
	}
}

func TestRunOncePassesConfig(t *testing.T) {
	mock := &MockReconciler{
		ResumeStaleOperationsFunc: func(ctx context.Context, olderThan time.Duration, maxAttempts, limit int) (services.ReconcileSummary, error) {
			return services.ReconcileSummary{Scanned: 3, Completed: 2, Failed: 1}, nil
		},
	}
	job := NewReconciliationJob(mock, testReconcileConfig())

	summary := job.RunOnce(context.Background())
	if summary.Scanned != 3 || summary.Completed != 2 || summary.Failed != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if mock.args[0] != 2*time.Minute || mock.args[1] != 5 || mock.args[2] != 25 {
		t.Errorf("unexpected args %v", mock.args)
	}
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	mock := &MockReconciler{
		ResumeStaleOperationsFunc: func(ctx context.Context, olderThan time.Duration, maxAttempts, limit int) (services.ReconcileSummary, error) {
			return services.ReconcileSummary{}, ErrMockReconcile
		},
	}
	job := NewReconciliationJob(mock, testReconcileConfig())
	if summary := job.RunOnce(context.Background()); summary.Scanned != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
}

func TestJobTicksUntilStopped(t *testing.T) {
	mock := &MockReconciler{}
	job := NewReconciliationJob(mock, testReconcileConfig())
	job.Start()

	deadline := time.Now().Add(2 * time.Second)
	for mock.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	job.Stop()

	if mock.Calls() < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", mock.Calls())
	}
	after := mock.Calls()
	time.Sleep(50 * time.Millisecond)
	if mock.Calls() != after {
		t.Error("job kept running after Stop")
	}
}

func TestStopCancelsInFlightPass(t *testing.T) {
	started := make(chan struct{})
	mock := &MockReconciler{
		ResumeStaleOperationsFunc: func(ctx context.Context, olderThan time.Duration, maxAttempts, limit int) (services.ReconcileSummary, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return services.ReconcileSummary{}, ctx.Err()
		},
	}
	job := NewReconciliationJob(mock, testReconcileConfig())
	job.Start()
	<-started

	stopped := make(chan struct{})
	go func() {
		job.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the running pass")
	}
}
