package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/panocam/internal/api/models"
	"github.com/smazurov/panocam/internal/events"
	"github.com/smazurov/panocam/internal/logging"
)

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Buffered log entries newer than the given sequence number",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		entries := logging.GetBuffer().Since(input.Since)
		out := make([]models.LogEntry, len(entries))
		for i, e := range entries {
			out[i] = models.LogEntry{
				Seq:        e.Seq,
				Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			}
		}
		return &models.LogsResponse{Body: models.LogsData{Entries: out, Count: len(out)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Log Levels",
		Description: "Effective log level of every module",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LogLevelsResponse, error) {
		return &models.LogLevelsResponse{Body: models.LogLevelsData{
			Global:  logging.GlobalLevel(),
			Modules: logging.Levels(),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-levels",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels",
		Summary:     "Set Log Levels",
		Description: "Replace runtime log levels. Modules omitted from the request follow the global level.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.LogLevelsRequest) (*models.LogLevelsResponse, error) {
		if _, ok := logging.ParseLevel(input.Body.Global); input.Body.Global != "" && !ok {
			return nil, huma.Error400BadRequest("unknown level: " + input.Body.Global)
		}
		for module, level := range input.Body.Modules {
			if _, ok := logging.ParseLevel(level); !ok {
				return nil, huma.Error400BadRequest("unknown level for " + module + ": " + level)
			}
		}
		global := input.Body.Global
		if global == "" {
			global = logging.GlobalLevel()
		}
		logging.SetLevels(logging.Config{Level: global, Modules: input.Body.Modules})
		return &models.LogLevelsResponse{Body: models.LogLevelsData{
			Global:  logging.GlobalLevel(),
			Modules: logging.Levels(),
		}}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing falls between the two
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var last uint64
		for _, entry := range logging.GetBuffer().ReadAll() {
			if err := send.Data(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			}); err != nil {
				return
			}
			last = entry.Seq
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if e, ok := event.(events.LogEntryEvent); ok && e.Seq <= last {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
