package controllers

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/docintake/models"
)

func TestFormValuePrefersFirstNonEmptyKey(t *testing.T) {
	form := &multipart.Form{Value: map[string][]string{
		"applicationId": {"  "},
		"appId":         {"A1"},
		"customerName":  {"Jane"},
	}}

	assert.Equal(t, "A1", formValue(form, "applicationId", "appId"))
	assert.Equal(t, "Jane", formValue(form, "customerName", "name"))
	assert.Equal(t, "", formValue(form, "customerEmail", "email"))
}

func TestLinkViewCarriesShareURL(t *testing.T) {
	lc := NewLinkController(nil, nil, nil, "https://docs.example.com/")
	v := lc.view(models.Link{Slug: "jane-doe-AB", AppID: "A1", Name: "Jane Doe", CreatedAt: time.Now()})

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "https://docs.example.com/u/jane-doe-AB", got["url"])
	assert.Equal(t, "jane-doe-AB", got["slug"])
	assert.Equal(t, "A1", got["appId"])
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		OK   bool   `json:"ok"`
		Time string `json:"time"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	_, err := time.Parse(time.RFC3339, body.Time)
	assert.NoError(t, err)
}
