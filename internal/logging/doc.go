// Package logging provides per-module structured loggers on top of log/slog.
//
// Each module gets its own *slog.LevelVar so levels can be changed at
// runtime, for example on a config file reload:
//
//	logger := logging.GetLogger("pipeline")
//	logger.Info("Pipeline started", "surface", bounds)
//
//	logging.SetLevels(logging.Config{Level: "info", Modules: map[string]string{"recorder": "debug"}})
//
// Records fan out to stdout (text or JSON), the systemd journal when it is
// reachable, and an in-memory ring buffer that backs GET /api/logs and the
// log entries streamed to SSE clients.
package logging
