package types

// DeviceInfo is the model geometry reported by the device over the INFO frame.
// It is an immutable snapshot: every probe produces a fresh value.
type DeviceInfo struct {
	// Sequence length expected per sample.
	// example: 4
	T int `json:"T" example:"4"`
	// Feature width expected per timestep.
	// example: 2
	F int `json:"F" example:"2"`
	// Output width of one prediction vector.
	// example: 3
	H int `json:"H" example:"3"`
	// Internal hidden size of the on-device model (informational).
	// example: 16
	Hidden int `json:"hidden" example:"16"`
}

// FlashReport summarizes one flash-model lifecycle operation.
type FlashReport struct {
	// Wall-clock duration of the external flash tool invocation in ms.
	// example: 8421.5
	FlashMS float64 `json:"flash_ms" example:"8421.5"`
	// Tail of the flash tool's combined output, for diagnosis.
	Output string `json:"output,omitempty"`
	// Device geometry probed after the post-flash reboot window.
	Device DeviceInfo `json:"device"`
}

// InferTiming carries per-batch timing metadata for an inference call.
type InferTiming struct {
	// Device geometry used to validate the batch.
	Device DeviceInfo `json:"device"`
	// Number of samples in the batch.
	// example: 1
	NSamples int `json:"n_samples" example:"1"`
	// Total wall-clock time for the batch in ms, including the info exchange.
	// example: 153.2
	TotalMS float64 `json:"total_ms" example:"153.2"`
	// Per-sample round-trip times in ms, in input order.
	PerSampleMS []float64 `json:"per_sample_ms"`
	// Mean of PerSampleMS (0 when the batch is empty).
	// example: 151.7
	MeanPerSampleMS float64 `json:"mean_per_sample_ms" example:"151.7"`
}

// TimingMS is the timing block of an InferResponse.
type TimingMS struct {
	// Flash duration in ms; 0 when no model was uploaded.
	// example: 0
	Flash float64 `json:"flash" example:"0"`
	// Total request handling time in ms.
	// example: 160.9
	Total float64 `json:"total" example:"160.9"`
	// Mean per-sample device round trip in ms.
	// example: 151.7
	MeanPerSample float64 `json:"mean_per_sample" example:"151.7"`
}

// InferResponse is returned by POST /v2/infer.
type InferResponse struct {
	// Always true on success.
	// example: true
	OK bool `json:"ok" example:"true"`
	// Device geometry the batch was validated against.
	Device DeviceInfo `json:"device"`
	// Timing breakdown in milliseconds.
	TimingMS TimingMS `json:"timing_ms"`
	// Predictions, one vector of length H per input sample, in input order.
	Pred [][]float32 `json:"pred"`
}

// InfoResponse is returned by GET /v2/info.
type InfoResponse struct {
	// example: true
	OK bool `json:"ok" example:"true"`
	// Current device geometry.
	Device DeviceInfo `json:"device"`
	// Serial port the bridge is attached to.
	// example: /dev/ttyACM0
	Port string `json:"port" example:"/dev/ttyACM0"`
	// API surface identifier.
	// example: v2
	Model string `json:"model,omitempty" example:"v2"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: true
	OK bool `json:"ok" example:"true"`
	// Device geometry from a live probe.
	Device DeviceInfo `json:"device"`
	// Serial port the bridge is attached to.
	// example: /dev/ttyACM0
	Port string `json:"port" example:"/dev/ttyACM0"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: input must have shape (T,F) or (N,T,F)
	Error string `json:"error" example:"input must have shape (T,F) or (N,T,F)"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
