package controllers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/docintake/apperr"
	"github.com/cppla/docintake/intake"
	"github.com/cppla/docintake/metrics"
	"github.com/cppla/docintake/middleware"
	"github.com/cppla/docintake/notify"
	"github.com/cppla/docintake/utils"
)

const notifyTimeout = 30 * time.Second

// UploadController accepts categorized document uploads.
type UploadController struct {
	pipeline   *intake.Pipeline
	dispatcher notify.Dispatcher
	metrics    *metrics.Metrics
}

// NewUploadController creates an UploadController.
func NewUploadController(pipeline *intake.Pipeline, dispatcher notify.Dispatcher, m *metrics.Metrics) *UploadController {
	if dispatcher == nil {
		dispatcher = notify.LogDispatcher{}
	}
	return &UploadController{pipeline: pipeline, dispatcher: dispatcher, metrics: m}
}

// UploadForLink stores files against the link named in the path.
func (uc *UploadController) UploadForLink(ctx *gin.Context) {
	uc.handle(ctx, ctx.Param("slug"))
}

// UploadForApplication stores files against the applicationId form field.
func (uc *UploadController) UploadForApplication(ctx *gin.Context) {
	uc.handle(ctx, "")
}

func (uc *UploadController) handle(ctx *gin.Context, slug string) {
	form, err := ctx.MultipartForm()
	if err != nil {
		switch {
		case middleware.IsBodyTooLarge(err):
			utils.Fail(ctx, apperr.TooLarge("upload too large"))
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			utils.Fail(ctx, apperr.Validation("expected multipart/form-data"))
		default:
			utils.Fail(ctx, apperr.Validation("malformed upload"))
		}
		return
	}
	defer func() { _ = form.RemoveAll() }()

	req := intake.Request{
		Slug:          slug,
		ApplicationID: formValue(form, "applicationId", "appId"),
		CustomerName:  formValue(form, "customerName", "name"),
		CustomerEmail: formValue(form, "customerEmail", "email"),
		Files:         intake.FilesFromForm(form),
	}
	res, err := uc.pipeline.Intake(ctx.Request.Context(), req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}

	notified := uc.notify(ctx, res)
	utils.Respond(ctx, http.StatusOK, gin.H{
		"ok":        true,
		"requestId": res.Manifest.RequestID,
		"received":  res.Manifest.Files,
		"notified":  notified,
	})
}

// notify is best-effort: the files and manifest are already durable.
func (uc *UploadController) notify(ctx *gin.Context, res *intake.Result) bool {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx.Request.Context()), notifyTimeout)
	defer cancel()

	if err := uc.dispatcher.Dispatch(nctx, notify.FromManifest(res.Manifest)); err != nil {
		uc.metrics.ObserveNotification("failed")
		utils.Sugar.Errorw("intake notification failed",
			"request_id", res.Manifest.RequestID,
			"manifest", res.ManifestPath,
			"error", err,
		)
		return false
	}
	uc.metrics.ObserveNotification("sent")
	return true
}

func formValue(form *multipart.Form, keys ...string) string {
	for _, k := range keys {
		if vs := form.Value[k]; len(vs) > 0 {
			if v := strings.TrimSpace(vs[0]); v != "" {
				return v
			}
		}
	}
	return ""
}
