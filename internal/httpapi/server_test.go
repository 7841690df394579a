package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"edgeflowd/internal/device"
	"edgeflowd/internal/npy"
	"edgeflowd/internal/protocol"
	"edgeflowd/pkg/types"
)

type mockService struct {
	info     types.DeviceInfo
	probeErr error
	ready    bool

	flashErr error
	inferErr error
	preds    [][]float32

	calls []string
}

func (m *mockService) ProbeInfo() (types.DeviceInfo, error) {
	m.calls = append(m.calls, "probe")
	return m.info, m.probeErr
}

func (m *mockService) FlashModel(ctx context.Context, model, meta []byte) (types.FlashReport, error) {
	m.calls = append(m.calls, "flash")
	if m.flashErr != nil {
		return types.FlashReport{}, m.flashErr
	}
	return types.FlashReport{FlashMS: 1200, Device: m.info}, nil
}

func (m *mockService) Infer(ctx context.Context, shape []int, data []float32) ([][]float32, types.InferTiming, error) {
	m.calls = append(m.calls, "infer")
	if m.inferErr != nil {
		return nil, types.InferTiming{}, m.inferErr
	}
	timing := types.InferTiming{
		Device:          m.info,
		NSamples:        len(m.preds),
		PerSampleMS:     make([]float64, len(m.preds)),
		MeanPerSampleMS: 1.5,
	}
	return m.preds, timing, nil
}

func (m *mockService) Ready() bool        { return m.ready }
func (m *mockService) SerialPort() string { return "/dev/ttyTEST" }

func defaultMock() *mockService {
	return &mockService{
		info:  types.DeviceInfo{T: 4, F: 2, H: 3, Hidden: 16},
		ready: true,
		preds: [][]float32{{1, 2, 3}},
	}
}

// multipartBody builds a multipart request body from named file parts.
func multipartBody(t *testing.T, parts map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range parts {
		fw, err := mw.CreateFormFile(name, name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func inputNPY(t *testing.T, shape []int) []byte {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	b, err := npy.Marshal(npy.Array{Shape: shape, Data: make([]float32, n)})
	if err != nil {
		t.Fatalf("marshal npy: %v", err)
	}
	return b
}

func TestHealth(t *testing.T) {
	svc := defaultMock()
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !body.OK || body.Device.H != 3 || body.Port != "/dev/ttyTEST" {
		t.Fatalf("body: %+v", body)
	}
}

func TestHealthDeviceDown(t *testing.T) {
	svc := defaultMock()
	svc.probeErr = &protocol.TimeoutError{Where: "INFO.magic", Waiting: "INFO"}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestInfo(t *testing.T) {
	svc := defaultMock()
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/info", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.InfoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Model != "v2" || body.Device.T != 4 {
		t.Fatalf("body: %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	svc := defaultMock()
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	svc.ready = false
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestInferJSON(t *testing.T) {
	svc := defaultMock()
	r := NewMux(svc)
	body, ct := multipartBody(t, map[string][]byte{"input_npy": inputNPY(t, []int{4, 2})})
	req := httptest.NewRequest(http.MethodPost, "/v2/infer", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.InferResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !resp.OK || len(resp.Pred) != 1 || resp.Pred[0][2] != 3 {
		t.Fatalf("resp: %+v", resp)
	}
	if resp.TimingMS.Flash != 0 {
		t.Fatalf("flash timing without upload: %+v", resp.TimingMS)
	}
	// no flash call without a model part
	for _, c := range svc.calls {
		if c == "flash" {
			t.Fatalf("unexpected flash: %v", svc.calls)
		}
	}
}

func TestInferWithModelFlashesFirst(t *testing.T) {
	svc := defaultMock()
	r := NewMux(svc)
	body, ct := multipartBody(t, map[string][]byte{
		"input_npy":  inputNPY(t, []int{4, 2}),
		"model_bin":  []byte("weights"),
		"model_meta": []byte(`{"T":4,"F":2}`),
	})
	req := httptest.NewRequest(http.MethodPost, "/v2/infer", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(svc.calls) != 2 || svc.calls[0] != "flash" || svc.calls[1] != "infer" {
		t.Fatalf("call order: %v", svc.calls)
	}
	var resp types.InferResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TimingMS.Flash != 1200 {
		t.Fatalf("flash timing: %+v", resp.TimingMS)
	}
}

func TestInferNPYOutput(t *testing.T) {
	svc := defaultMock()
	r := NewMux(svc)
	body, ct := multipartBody(t, map[string][]byte{"input_npy": inputNPY(t, []int{4, 2})})
	req := httptest.NewRequest(http.MethodPost, "/v2/infer_npy", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("content-type=%s", got)
	}
	out, err := npy.Unmarshal(w.Body.Bytes())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Shape) != 2 || out.Shape[0] != 1 || out.Shape[1] != 3 {
		t.Fatalf("shape: %v", out.Shape)
	}
	if out.Data[0] != 1 || out.Data[2] != 3 {
		t.Fatalf("data: %v", out.Data)
	}
}

func TestInferMissingInput(t *testing.T) {
	svc := defaultMock()
	r := NewMux(svc)
	body, ct := multipartBody(t, map[string][]byte{"model_bin": []byte("w")})
	req := httptest.NewRequest(http.MethodPost, "/v2/infer", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("device touched on invalid upload: %v", svc.calls)
	}
}

func TestInferErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{device.ErrShape("input must have shape (T,F) or (N,T,F), got rank 1"), http.StatusBadRequest},
		{&protocol.TimeoutError{Where: "PRED.magic", Waiting: "PRED"}, http.StatusGatewayTimeout},
		{&protocol.IntegrityError{Expected: 3, Got: 5}, http.StatusBadGateway},
		{&device.ToolFailureError{Cmd: "idf.py", ExitCode: 2}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		svc := defaultMock()
		svc.inferErr = tc.err
		r := NewMux(svc)
		body, ct := multipartBody(t, map[string][]byte{"input_npy": inputNPY(t, []int{4, 2})})
		req := httptest.NewRequest(http.MethodPost, "/v2/infer", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("err %v: status=%d want %d", tc.err, w.Code, tc.want)
		}
		var er types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != tc.want {
			t.Fatalf("error payload: %s", w.Body.String())
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	svc := defaultMock()
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "edgeflow_http_requests_total") {
		t.Fatalf("metrics body missing counters")
	}
}
