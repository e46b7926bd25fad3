// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pdiddy/mdconvert/internal/convert"
	"github.com/pdiddy/mdconvert/internal/quota"
	"github.com/pdiddy/mdconvert/internal/upload"
	"github.com/pdiddy/mdconvert/internal/workflow"
	"github.com/pdiddy/mdconvert/pkg/types"
)

// MIMEMsgpack is the Accept value that selects msgpack responses.
const MIMEMsgpack = "application/msgpack"

type fileResult struct {
	File      string `json:"file" msgpack:"file"`
	Size      int64  `json:"size" msgpack:"size"`
	MimeType  string `json:"mime_type" msgpack:"mime_type"`
	Content   string `json:"content" msgpack:"content"`
	Succeeded bool   `json:"succeeded" msgpack:"succeeded"`
}

type convertResponse struct {
	ID        string             `json:"id" msgpack:"id"`
	Date      string             `json:"date" msgpack:"date"`
	Results   []fileResult       `json:"results" msgpack:"results"`
	Converted int                `json:"converted" msgpack:"converted"`
	Total     int                `json:"total" msgpack:"total"`
	Rejected  []upload.Rejection `json:"rejected,omitempty" msgpack:"rejected,omitempty"`
	Notices   []workflow.Notice  `json:"notices,omitempty" msgpack:"notices,omitempty"`
}

type quotaResponse struct {
	Date      string `json:"date" msgpack:"date"`
	Used      int    `json:"used" msgpack:"used"`
	Limit     int    `json:"limit" msgpack:"limit"`
	Remaining int    `json:"remaining" msgpack:"remaining"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.deps.Version,
	})
}

func (s *Server) handleQuota(c echo.Context) error {
	client := clientID(c)
	date := quota.Day(s.deps.Now())
	used := s.tracker(client).CurrentCount(c.Request().Context(), date)
	return respond(c, http.StatusOK, quotaResponse{
		Date:      date,
		Used:      used,
		Limit:     s.deps.DailyLimit,
		Remaining: max(s.deps.DailyLimit-used, 0),
	})
}

// handleConvert runs one batch for the uploaded files. The multipart form
// carries one or more "file" parts and an optional "options" JSON field.
func (s *Server) handleConvert(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected a multipart form", err)
	}

	opts := s.deps.Options
	if raw := form.Value[convert.OptionsField]; len(raw) > 0 && strings.TrimSpace(raw[0]) != "" {
		if err := json.Unmarshal([]byte(raw[0]), &opts); err != nil {
			return NewBadRequestError("invalid options", err)
		}
		if err := opts.Validate(); err != nil {
			return NewBadRequestError("invalid options", err)
		}
	}

	sel := upload.FromMultipart(form.File[convert.FileField], s.deps.Limits)

	client := clientID(c)
	if !s.acquire(client) {
		return NewConflictError("a conversion is already running for this client")
	}
	defer s.release(client)

	rec := &workflow.Recorder{}
	ctrl := workflow.New(s.deps.Converter, s.tracker(client), rec, workflow.Config{
		DailyLimit:  s.deps.DailyLimit,
		Concurrency: s.deps.Concurrency,
		Options:     opts,
		Now:         s.deps.Now,
		Logger:      s.deps.Logger,
	})

	batch, err := ctrl.Run(c.Request().Context(), sel.Files)
	var qe *workflow.QuotaExceededError
	switch {
	case err == nil:
	case errors.As(err, &qe):
		return NewQuotaExceededError(qe.Remaining)
	case errors.Is(err, workflow.ErrNoFiles):
		apiErr := NewBadRequestError("Please upload at least one file to convert", nil)
		apiErr.Details = rejectionDetails(sel.Rejected)
		return apiErr
	case errors.Is(err, workflow.ErrConversionInProgress):
		return NewConflictError("a conversion is already running for this client")
	default:
		return NewInternalError("An error occurred during conversion. Please try again.", nil)
	}

	s.log.Info("batch served", "client", client, "batch", batch.ID, "converted", batch.Converted, "total", batch.Total)
	return respond(c, http.StatusOK, newConvertResponse(batch, sel.Rejected, rec.Notices()))
}

func newConvertResponse(b types.Batch, rejected []upload.Rejection, notices []workflow.Notice) convertResponse {
	resp := convertResponse{
		ID:        b.ID,
		Date:      b.Date,
		Results:   make([]fileResult, len(b.Results)),
		Converted: b.Converted,
		Total:     b.Total,
		Rejected:  rejected,
		Notices:   notices,
	}
	for i, r := range b.Results {
		resp.Results[i] = fileResult{
			File:      r.SourceFile.Name,
			Size:      r.SourceFile.Size,
			MimeType:  r.SourceFile.MimeType,
			Content:   r.Content,
			Succeeded: r.Succeeded,
		}
	}
	return resp
}

func rejectionDetails(rejected []upload.Rejection) string {
	parts := make([]string, len(rejected))
	for i, r := range rejected {
		parts[i] = r.Name + ": " + r.Reason
	}
	return strings.Join(parts, "; ")
}

// respond writes v as msgpack when the client asks for it, JSON otherwise.
func respond(c echo.Context, status int, v any) error {
	if !strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEMsgpack) {
		return c.JSON(status, v)
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return NewInternalError("encoding response", err)
	}
	return c.Blob(status, MIMEMsgpack, data)
}
