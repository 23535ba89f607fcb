package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/goliatone/go-bulkedit/command"
	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/query"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type response struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type errorResponse struct {
	OK       bool              `json:"ok"`
	Error    string            `json:"error"`
	Code     int               `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	Result   *core.ApplyResult `json:"result,omitempty"`
}

type changesPayload struct {
	Shop        string        `json:"shop"`
	Description string        `json:"description"`
	Changes     []core.Change `json:"changes"`
}

// Handler serves the bulk edit routes through the command and query handlers.
type Handler struct {
	apply    gocmd.Commander[command.ApplyBulkMessage]
	rollback gocmd.Commander[command.RollbackMessage]
	preview  gocmd.Querier[query.PreviewMessage, []core.PreviewNote]
	latest   gocmd.Querier[query.LatestRunMessage, core.RunRecord]
	logger   core.Logger
}

func NewHandler(engine Engine, logger core.Logger) *Handler {
	if logger == nil {
		logger = glog.Nop()
	}
	return &Handler{
		apply:    command.NewApplyBulkCommand(engine),
		rollback: command.NewRollbackCommand(engine),
		preview:  query.NewPreviewQuery(engine),
		latest:   query.NewLatestRunQuery(engine),
		logger:   logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{OK: true, Data: map[string]string{"status": "ok"}})
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var payload changesPayload
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, invalidBody(err), nil)
		return
	}
	msg := query.PreviewMessage{Changes: payload.Changes}
	if err := msg.Validate(); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	notes, err := h.preview.Query(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{OK: true, Data: notes})
}

// Apply answers 200 when every batch ran, item errors included. A batch
// failure answers with the mapped status and carries the partial result.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var payload changesPayload
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, invalidBody(err), nil)
		return
	}
	msg := command.ApplyBulkMessage{Request: core.ApplyRequest{
		Shop:        resolveShop(r, payload.Shop),
		Description: payload.Description,
		Changes:     payload.Changes,
	}}
	if err := msg.Validate(); err != nil {
		h.writeError(w, r, err, nil)
		return
	}

	collector := gocmd.NewResult[core.ApplyResult]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	err := h.apply.Execute(ctx, msg)
	result, stored := collector.Load()
	if err != nil {
		var partial *core.ApplyResult
		if stored {
			partial = &result
		}
		h.writeError(w, r, err, partial)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{OK: result.OK, Data: result})
}

func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Shop string `json:"shop"`
	}
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &payload); err != nil {
			h.writeError(w, r, invalidBody(err), nil)
			return
		}
	}
	msg := command.RollbackMessage{Shop: resolveShop(r, payload.Shop)}
	if err := msg.Validate(); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	if err := h.rollback.Execute(r.Context(), msg); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{OK: true})
}

func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	msg := query.LatestRunMessage{Shop: resolveShop(r, "")}
	if err := msg.Validate(); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	record, err := h.latest.Query(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{OK: true, Data: record})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, result *core.ApplyResult) {
	mapped := core.MapError(err)
	status := mapped.Code
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		h.logger.WithContext(r.Context()).Error("bulk request failed",
			"path", r.URL.Path,
			"code", mapped.TextCode,
			"error", err,
		)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{
		Error:    mapped.TextCode,
		Code:     status,
		Message:  mapped.Message,
		Metadata: mapped.Metadata,
		Result:   result,
	})
}

// resolveShop prefers the query parameter, then the X-Shop header, then the
// body value.
func resolveShop(r *http.Request, fallback string) string {
	if shop := strings.TrimSpace(r.URL.Query().Get(ShopQueryParam)); shop != "" {
		return shop
	}
	if shop := strings.TrimSpace(r.Header.Get(ShopHeader)); shop != "" {
		return shop
	}
	return strings.TrimSpace(fallback)
}

func invalidBody(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "httpapi: invalid request body").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorPreconditionFailed)
}

