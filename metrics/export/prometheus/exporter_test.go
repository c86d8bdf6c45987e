package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/phoneauth"
)

type fakeSource struct {
	snapshot phoneauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() phoneauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: phoneauth.MetricsSnapshot{
			Counters:   map[phoneauth.MetricID]uint64{},
			Histograms: map[phoneauth.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistograms(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: phoneauth.MetricsSnapshot{
			Counters: map[phoneauth.MetricID]uint64{
				phoneauth.MetricRefreshReuseDetected: 7,
			},
			Histograms: map[phoneauth.MetricID][]uint64{
				phoneauth.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"phoneauth_refresh_reuse_detected_total 7",
		"phoneauth_login_success_total 0",
		"# TYPE phoneauth_refresh_latency_seconds histogram",
		`phoneauth_refresh_latency_seconds_bucket{le="0.005"} 1`,
		`phoneauth_refresh_latency_seconds_bucket{le="+Inf"} 36`,
		"phoneauth_refresh_latency_seconds_count 36",
		`phoneauth_signup_latency_seconds_bucket{le="+Inf"} 0`,
		"phoneauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: phoneauth.MetricsSnapshot{
			Counters: map[phoneauth.MetricID]uint64{
				phoneauth.MetricLoginSuccess: 1,
				phoneauth.MetricLogout:       2,
			},
			Histograms: map[phoneauth.MetricID][]uint64{},
		},
	})
	if a, b := exp.Render(), exp.Render(); a != b {
		t.Fatal("render output changed between calls")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: phoneauth.MetricsSnapshot{
			Counters:   map[phoneauth.MetricID]uint64{phoneauth.MetricLoginSuccess: 1},
			Histograms: map[phoneauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("escapeHelp = %q", got)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporter(fakeSource{
		snapshot: phoneauth.MetricsSnapshot{
			Counters: map[phoneauth.MetricID]uint64{
				phoneauth.MetricLoginSuccess:       1000,
				phoneauth.MetricLoginFailure:       40,
				phoneauth.MetricRefreshSuccess:     800,
				phoneauth.MetricRefreshFailure:     10,
				phoneauth.MetricSessionCreated:     800,
				phoneauth.MetricSessionInvalidated: 20,
			},
			Histograms: map[phoneauth.MetricID][]uint64{
				phoneauth.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
