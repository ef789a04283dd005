// Package errors provides standardized error handling for the device event pipeline.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: timeouts, lost connections, full queues (retry recommended)
//   - Invalid: undecodable payloads, validation failures (drop, do not retry)
//   - Fatal: bad configuration, failed required components (stop the component)
//
// # Wrapping
//
// All wrappers produce messages of the form "component.method: action failed: cause":
//
//	if err := conn.Connect(ctx); err != nil {
//	    return errors.WrapFatal(err, "mqtt-publisher", "Start", "broker connect")
//	}
//
// Decode failures are marked with WrapDecode so that receivers can tell them apart
// from transport failures with errors.Is(err, errors.ErrDecodeFailed).
//
// Required nested components that end up in an error state during startup are
// reported through NewStartupFault, which matches ErrStartupFault.
package errors
