package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
// labelValueが空の場合はラベルを問わず最初のメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name, labelValue string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue == "" {
				return m
			}
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == labelValue {
					return m
				}
			}
		}
	}
	t.Fatalf("metric %s{%s} not found", name, labelValue)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestCounters_Increment は各カウンタが記録ごとに増加することを検証する。
func TestCounters_Increment(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionCreated()
	c.RecordSessionCreated()
	c.RecordRoomCreated()
	c.RecordSessionsPurged(5)
	c.RecordPanic()

	tests := []struct {
		name string
		want float64
	}{
		{name: "campustaxi_sessions_created_total", want: 2},
		{name: "campustaxi_rooms_created_total", want: 1},
		{name: "campustaxi_sessions_purged_total", want: 5},
		{name: "campustaxi_http_panics_total", want: 1},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, tt.name, "")
		if got := m.GetCounter().GetValue(); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// TestOutcomeCounters_AreLabelled は結果別カウンタがoutcomeラベルで分かれることを検証する。
func TestOutcomeCounters_AreLabelled(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordJoin("joined")
	c.RecordJoin("joined")
	c.RecordJoin("full")
	c.RecordLeave("host_rejected")
	c.RecordSessionResolved("expired")
	c.RecordSignup("success")
	c.RecordLogin("rejected")

	tests := []struct {
		name    string
		outcome string
		want    float64
	}{
		{name: "campustaxi_room_join_total", outcome: "joined", want: 2},
		{name: "campustaxi_room_join_total", outcome: "full", want: 1},
		{name: "campustaxi_room_leave_total", outcome: "host_rejected", want: 1},
		{name: "campustaxi_session_resolve_total", outcome: "expired", want: 1},
		{name: "campustaxi_signup_total", outcome: "success", want: 1},
		{name: "campustaxi_login_total", outcome: "rejected", want: 1},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, tt.name, tt.outcome)
		if got := m.GetCounter().GetValue(); got != tt.want {
			t.Errorf("%s{%s} = %v, want %v", tt.name, tt.outcome, got, tt.want)
		}
	}
}

// TestRecordHTTPStatus_LabelsByStatusCode はステータスコードがラベルとして記録されることを検証する。
func TestRecordHTTPStatus_LabelsByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(409)
	c.RecordHTTPStatus(409)
	c.RecordHTTPStatus(200)

	if got := findMetric(t, reg, "campustaxi_http_status_total", "409").GetCounter().GetValue(); got != 2 {
		t.Errorf("409 count = %v, want 2", got)
	}
	if got := findMetric(t, reg, "campustaxi_http_status_total", "200").GetCounter().GetValue(); got != 1 {
		t.Errorf("200 count = %v, want 1", got)
	}
}

// TestRecordRequestLatency_ObservesHistogram はヒストグラムに観測値が記録されることを検証する。
func TestRecordRequestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(150 * time.Millisecond)

	h := findMetric(t, reg, "campustaxi_http_request_duration_seconds", "").GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.149 || h.GetSampleSum() > 0.151 {
		t.Errorf("sample sum = %v, want ~0.15", h.GetSampleSum())
	}
}

// TestHandler_ServesMetrics はスクレイプ用ハンドラーがテキスト形式で返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRoomCreated()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "campustaxi_rooms_created_total 1") {
		t.Errorf("response should contain rooms counter, got:\n%s", body)
	}
}
