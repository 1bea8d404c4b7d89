package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"parley/internal/confirm"
	"parley/internal/domain"
	"parley/internal/engine"
	"parley/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"workflow thread not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Parley API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Parley API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerThreads(group, cfg.Engine)
	registerMessages(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerAgents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, confirm.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, confirm.ErrAlreadyProcessed):
		return newAPIError(http.StatusConflict, "already_processed", err.Error(), nil)
	case errors.Is(err, workflow.ErrDuplicateThread):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalid):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Parley API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerThreads(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "init-thread",
		Method:        http.MethodPost,
		Path:          "/threads",
		Summary:       "Initialize workflow thread",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body InitThreadRequest `json:"body"`
	}) (*struct {
		Body InitThreadResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := e.InitThread(ctx, actorID, engine.InitRequest{
			ProposalTitle:         input.Body.ProposalTitle,
			Location:              input.Body.Location,
			SustainabilityContext: input.Body.SustainabilityContext,
			IndigenousContext:     input.Body.IndigenousContext,
			EmailSender:           input.Body.EmailSender,
			MeetingOrganizer:      input.Body.MeetingOrganizer,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InitThreadResponse `json:"body"`
		}{Body: initThreadResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-threads",
		Method:      http.MethodGet,
		Path:        "/threads",
		Summary:     "List workflow threads",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ThreadListResponse `json:"body"`
	}, error) {
		threads := e.ListThreads()
		return &struct {
			Body ThreadListResponse `json:"body"`
		}{Body: ThreadListResponse{Count: len(threads), Threads: threads}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-thread",
		Method:      http.MethodGet,
		Path:        "/threads/{thread_id}",
		Summary:     "Get thread status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ThreadID string `path:"thread_id"`
	}) (*struct {
		Body domain.ThreadSnapshot `json:"body"`
	}, error) {
		snap, err := e.Status(input.ThreadID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ThreadSnapshot `json:"body"`
		}{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-thread",
		Method:      http.MethodDelete,
		Path:        "/threads/{thread_id}",
		Summary:     "Delete thread",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ThreadID string `path:"thread_id"`
	}) (*struct {
		Body DeleteThreadResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteThread(ctx, actorID, input.ThreadID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeleteThreadResponse `json:"body"`
		}{Body: DeleteThreadResponse{ThreadID: input.ThreadID, Status: "deleted"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-thread-config",
		Method:      http.MethodPatch,
		Path:        "/threads/{thread_id}/config",
		Summary:     "Update thread sender/organizer",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ThreadID string                    `path:"thread_id"`
		Body     UpdateThreadConfigRequest `json:"body"`
	}) (*struct {
		Body UpdateThreadConfigResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := e.UpdateConfig(ctx, actorID, input.ThreadID, input.Body.EmailSender, input.Body.MeetingOrganizer)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UpdateThreadConfigResponse `json:"body"`
		}{Body: UpdateThreadConfigResponse{
			ThreadID:         snap.ThreadID,
			EmailSender:      snap.EmailSender,
			MeetingOrganizer: snap.MeetingOrganizer,
			Instructions:     snap.Instructions,
			Summary:          summaryFromSnapshot(snap),
		}}, nil
	})
}

func registerMessages(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "post-message",
		Method:      http.MethodPost,
		Path:        "/threads/{thread_id}/messages",
		Summary:     "Post chat message and regenerate instructions",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ThreadID string             `path:"thread_id"`
		Body     PostMessageRequest `json:"body"`
	}) (*struct {
		Body engine.MessageResult `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		result, err := e.PostMessage(ctx, actorID, input.ThreadID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MessageResult `json:"body"`
		}{Body: result}, nil
	})
}

func registerActions(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-action",
		Method:        http.MethodPost,
		Path:          "/threads/{thread_id}/actions",
		Summary:       "Request confirmable batch action",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ThreadID string               `path:"thread_id"`
		Body     RequestActionRequest `json:"body"`
	}) (*struct {
		Body domain.PendingAction `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		action, err := e.RequestAction(ctx, actorID, input.ThreadID, domain.ActionType(input.Body.ActionType), input.Body.ContactAddress, input.Body.EventTypeName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PendingAction `json:"body"`
		}{Body: action}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-action",
		Method:      http.MethodPost,
		Path:        "/actions/{action_id}/confirm",
		Summary:     "Approve or reject a pending action",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ActionID string               `path:"action_id"`
		Body     ConfirmActionRequest `json:"body"`
	}) (*struct {
		Body ConfirmActionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		result, err := e.ConfirmAction(ctx, actorID, input.ActionID, input.Body.Approved)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConfirmActionResponse `json:"body"`
		}{Body: confirmActionResponse(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-action",
		Method:      http.MethodGet,
		Path:        "/actions/{action_id}",
		Summary:     "Get confirmation record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
	}) (*struct {
		Body domain.PendingAction `json:"body"`
	}, error) {
		action, err := e.GetAction(input.ActionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PendingAction `json:"body"`
		}{Body: action}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "List pending confirmations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PendingActionsResponse `json:"body"`
	}, error) {
		stats := e.GateStats()
		return &struct {
			Body PendingActionsResponse `json:"body"`
		}{Body: PendingActionsResponse{
			PendingCount:  stats.PendingCount,
			ExecutedCount: stats.ExecutedCount,
			RejectedCount: stats.RejectedCount,
			Pending:       e.PendingActions(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-actions",
		Method:      http.MethodPost,
		Path:        "/actions/sweep",
		Summary:     "Purge resolved confirmations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SweepActionsResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		removed := e.SweepActions(ctx, actorID)
		return &struct {
			Body SweepActionsResponse `json:"body"`
		}{Body: SweepActionsResponse{Removed: removed}}, nil
	})
}

func registerAgents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List available agents",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AgentListResponse `json:"body"`
	}, error) {
		var names []string
		if e.Agents != nil {
			names = e.Agents.Names()
		}
		return &struct {
			Body AgentListResponse `json:"body"`
		}{Body: AgentListResponse{Agents: names}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ask-agent",
		Method:      http.MethodPost,
		Path:        "/agents/{agent}/ask",
		Summary:     "Ask a specialized agent",
		Errors: []int{
			http.StatusBadRequest,
		},
	}, func(ctx context.Context, input *struct {
		Agent string          `path:"agent"`
		Body  AskAgentRequest `json:"body"`
	}) (*struct {
		Body AskAgentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.Message) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "message is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		answer, err := e.AskAgent(ctx, actorID, input.Agent, input.Body.Message, input.Body.Context, input.Body.Latitude, input.Body.Longitude)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AskAgentResponse `json:"body"`
		}{Body: AskAgentResponse{Agent: input.Agent, Response: answer}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
