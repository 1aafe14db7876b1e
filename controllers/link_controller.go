package controllers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/docintake/apperr"
	"github.com/cppla/docintake/intake"
	"github.com/cppla/docintake/metrics"
	"github.com/cppla/docintake/models"
	"github.com/cppla/docintake/store"
	"github.com/cppla/docintake/utils"
)

// LinkController manages personalized upload links.
type LinkController struct {
	links    *store.LinkStore
	pipeline *intake.Pipeline
	metrics  *metrics.Metrics
	baseURL  string
}

// NewLinkController creates a LinkController. baseURL is the public origin
// used to compose share URLs.
func NewLinkController(links *store.LinkStore, pipeline *intake.Pipeline, m *metrics.Metrics, baseURL string) *LinkController {
	return &LinkController{
		links:    links,
		pipeline: pipeline,
		metrics:  m,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// LinkView is a link as returned by the API, with its share URL.
type LinkView struct {
	models.Link
	URL string `json:"url"`
}

func (lc *LinkController) view(l models.Link) LinkView {
	return LinkView{Link: l, URL: lc.baseURL + "/u/" + url.PathEscape(l.Slug)}
}

// CreateLink issues a new link for an application.
func (lc *LinkController) CreateLink(ctx *gin.Context) {
	var req models.NewLink
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, apperr.Validation("invalid request payload"))
		return
	}
	link, err := lc.links.Create(ctx.Request.Context(), req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	lc.metrics.IncLinksCreated()
	utils.Sugar.Infow("link created", "slug", link.Slug, "app_id", link.AppID)
	utils.Respond(ctx, http.StatusCreated, gin.H{"ok": true, "link": lc.view(link)})
}

// ListLinks returns links newest first, filtered by ?q=.
func (lc *LinkController) ListLinks(ctx *gin.Context) {
	links, err := lc.links.List(ctx.Request.Context(), ctx.Query("q"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	views := make([]LinkView, 0, len(links))
	for _, l := range links {
		views = append(views, lc.view(l))
	}
	utils.Respond(ctx, http.StatusOK, gin.H{"ok": true, "links": views})
}

// GetLink returns one link by slug.
func (lc *LinkController) GetLink(ctx *gin.Context) {
	link, err := lc.links.GetBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Respond(ctx, http.StatusOK, gin.H{"ok": true, "link": lc.view(link)})
}

// DeleteLink removes a link by slug or id. Uploaded files stay on disk.
func (lc *LinkController) DeleteLink(ctx *gin.Context) {
	removed, err := lc.links.DeleteBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	lc.metrics.IncLinksDeleted()
	utils.Sugar.Infow("link deleted", "slug", removed.Slug, "app_id", removed.AppID)
	utils.Respond(ctx, http.StatusOK, gin.H{"ok": true, "removed": lc.view(removed)})
}

// ListManifests returns every intake receipt recorded for a link, oldest first.
func (lc *LinkController) ListManifests(ctx *gin.Context) {
	slug := ctx.Param("slug")
	if _, err := lc.links.GetBySlug(ctx.Request.Context(), slug); err != nil {
		utils.Fail(ctx, err)
		return
	}
	manifests, err := lc.pipeline.ListManifests(slug)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Respond(ctx, http.StatusOK, gin.H{"ok": true, "manifests": manifests})
}

// Redirect sends a customer from their personal URL to the upload form
// with the link identity prefilled.
func (lc *LinkController) Redirect(ctx *gin.Context) {
	link, err := lc.links.GetBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	q := url.Values{}
	q.Set("slug", link.Slug)
	q.Set("appId", link.AppID)
	q.Set("name", link.Name)
	ctx.Redirect(http.StatusFound, lc.baseURL+"/index.html?"+q.Encode())
}

// Health reports liveness.
func Health(ctx *gin.Context) {
	utils.Respond(ctx, http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
}
