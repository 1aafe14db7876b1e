package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("link not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestStorageUnwrapsCause(t *testing.T) {
	err := Storage("link store write failed", fs.ErrPermission)

	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, "link store write failed", PublicMessage(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		Validation("x"):      http.StatusBadRequest,
		UnsupportedType("x"): http.StatusBadRequest,
		TooLarge("x"):        http.StatusBadRequest,
		TooManyFiles("x"):    http.StatusBadRequest,
		EmptyUpload("x"):     http.StatusBadRequest,
		NotFound("x"):        http.StatusNotFound,
		RateLimited("x"):     http.StatusTooManyRequests,
		Storage("x", nil):    http.StatusInternalServerError,
		errors.New("boom"):   http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestPublicMessageHidesForeignErrors(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(errors.New("open /etc/secret: denied")))
	assert.Equal(t, "appId and name are required", PublicMessage(Validation("appId and name are required")))
	assert.Equal(t, string(KindEmptyUpload), PublicMessage(New(KindEmptyUpload, "")))
}
