package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parity-labs/parity-cli/internal/config"
	"github.com/parity-labs/parity-cli/internal/model"
)

func TestCheckerInitialSweep(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestStore(t)
	seedRun(t, s, []model.PairResult{
		{
			Key:     model.PairKey{ProducerID: "proxy", ParserID: "proxy-p"},
			Status:  model.StatusDone,
			Outcome: model.StatusTimedOut,
			Report:  &model.ComplianceReport{Score: 0, Grade: model.GradeF, Reason: model.ReasonNoParseObserved},
		},
	})

	cfg := config.MonitoringConfig{
		WebhookURL:          srv.URL,
		NoParseThreshold:    1,
		CheckIntervalSecs:   3600, // only the startup sweep fires in this test
		LookbackWindowHours: 24,
	}
	checker := NewChecker(NewCollector(s), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Run(ctx)

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond, "startup sweep should deliver the no-parse alert")
}
