// Package capture owns a capture session: the frame source, the streaming
// pipeline that renders it and the recorder fed by that pipeline.
//
// The UI layer drives a Session through its command methods and reacts to
// events published on the bus; it never reaches into the pipeline or the
// recorder directly.
package capture
