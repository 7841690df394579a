package httpapi

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgeflowd/internal/device"
	"edgeflowd/internal/npy"
	"edgeflowd/internal/protocol"
	"edgeflowd/pkg/types"
)

// Service defines the device coordinator methods required by the HTTP layer.
type Service interface {
	ProbeInfo() (types.DeviceInfo, error)
	FlashModel(ctx context.Context, model, meta []byte) (types.FlashReport, error)
	Infer(ctx context.Context, shape []int, data []float32) ([][]float32, types.InferTiming, error)
	Ready() bool
	SerialPort() string
}

// NewMux builds the HTTP handler for the bridge.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !svc.Ready() {
			http.Error(w, "device not probed yet", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.ProbeInfo()
		if err != nil {
			IncrementDeviceError("probe")
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, types.HealthResponse{OK: true, Device: info, Port: svc.SerialPort()})
	})

	r.Get("/v2/info", func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.ProbeInfo()
		if err != nil {
			IncrementDeviceError("probe")
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, types.InfoResponse{OK: true, Device: info, Port: svc.SerialPort(), Model: "v2"})
	})

	r.Post("/v2/infer", func(w http.ResponseWriter, r *http.Request) {
		handleInfer(svc, w, r, false)
	})

	r.Post("/v2/infer_npy", func(w http.ResponseWriter, r *http.Request) {
		handleInfer(svc, w, r, true)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// inferUpload is the decoded multipart body of an inference request.
type inferUpload struct {
	input npy.Array
	model []byte
	meta  []byte
}

func readInferUpload(w http.ResponseWriter, r *http.Request) (inferUpload, error) {
	var up inferUpload
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return up, errors.New("request must be multipart/form-data with an input_npy file")
	}
	inputBytes, err := formFileBytes(r, "input_npy")
	if err != nil {
		return up, errors.New("input_npy file is required")
	}
	up.input, err = npy.Unmarshal(inputBytes)
	if err != nil {
		return up, err
	}
	// model_bin/model_meta are optional; meta without a model is ignored
	if b, err := formFileBytes(r, "model_bin"); err == nil {
		up.model = b
	}
	if b, err := formFileBytes(r, "model_meta"); err == nil {
		up.meta = b
	}
	return up, nil
}

func formFileBytes(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) { _ = f.Close() }(f)
	return io.ReadAll(f)
}

func handleInfer(svc Service, w http.ResponseWriter, r *http.Request, rawOut bool) {
	start := time.Now()
	up, err := readInferUpload(w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	logInferStart(r, len(up.input.Shape), up.model != nil)
	// Join server base context with request context so shutdown cancels the
	// external tool; serial exchanges still run to their own deadlines.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	var flashMS float64
	if up.model != nil {
		report, err := svc.FlashModel(ctx, up.model, up.meta)
		if err != nil {
			IncrementDeviceError(errorKind(err))
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		IncrementFlash()
		flashMS = report.FlashMS
	}

	preds, timing, err := svc.Infer(ctx, up.input.Shape, up.input.Data)
	if err != nil {
		IncrementDeviceError(errorKind(err))
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	AddInferSamples(timing.NSamples)

	if rawOut {
		out := npy.Array{Shape: []int{len(preds), timing.Device.H}}
		out.Data = make([]float32, 0, len(preds)*timing.Device.H)
		for _, p := range preds {
			out.Data = append(out.Data, p...)
		}
		buf, err := npy.Marshal(out)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(buf)
		return
	}

	writeJSON(w, types.InferResponse{
		OK:     true,
		Device: timing.Device,
		TimingMS: types.TimingMS{
			Flash:         flashMS,
			Total:         float64(time.Since(start)) / float64(time.Millisecond),
			MeanPerSample: timing.MeanPerSampleMS,
		},
		Pred: preds,
	})
}

// statusForError maps coordinator error types to HTTP status codes.
func statusForError(err error) int {
	switch {
	case device.IsShapeMismatch(err):
		return http.StatusBadRequest
	case protocol.IsTimeout(err):
		return http.StatusGatewayTimeout
	case protocol.IsIntegrity(err), device.IsToolFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	switch {
	case device.IsShapeMismatch(err):
		return "shape"
	case protocol.IsTimeout(err):
		return "timeout"
	case protocol.IsIntegrity(err):
		return "integrity"
	case device.IsToolFailure(err):
		return "tool"
	default:
		return "other"
	}
}
