// Package device owns the lifecycle of the single UART-attached inference
// device. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - errors.go: error types and helpers (IsShapeMismatch, IsToolFailure).
//   - runner.go: ToolRunner capability for external idf.py invocations.
//   - serial.go: PortOpener capability wrapping the serial library.
//   - ensure.go: idempotent firmware build.
//   - flash.go: model staging + flash + post-flash probe.
//   - probe.go: metadata probe over the transport session.
//   - infer.go: batched inference.
//
// The serial link is one exclusive physical resource. Every public operation
// (EnsureBuilt, FlashModel, ProbeInfo, Infer) takes the Manager's mutex for
// its full duration, so exactly one lifecycle operation runs at a time and an
// inference batch is never interleaved with a flash. Go has no re-entrant
// mutex, so internal steps that run under an already-held lock are factored
// into *Locked functions; those must only ever be called with mu held.
//
// There is no retry and no cancellation of an exchange in flight: a failed
// flash or probe propagates to the caller and the device is left as-is.
package device
