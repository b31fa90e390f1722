package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", RoleMismatch("owners do not need approval"))

	assert.True(t, errors.Is(err, ErrRoleMismatch))
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestAsWrapsPlainErrors(t *testing.T) {
	e := As(errors.New("boom"))
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, CodeInternal, e.Code)
	assert.Nil(t, As(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		Validation("x"):                   http.StatusBadRequest,
		NotFound("station", 1):            http.StatusNotFound,
		AccessDenied("x"):                 http.StatusForbidden,
		External("csms down", nil):        http.StatusBadGateway,
		Configuration("missing token"):    http.StatusServiceUnavailable,
		Unauthorized(CodeTokenInvalid, ""): http.StatusUnauthorized,
		errors.New("plain"):               http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestWithDetailCopies(t *testing.T) {
	base := Validation("bad")
	withField := base.WithDetail("field", "charger_id")

	assert.Nil(t, base.Details)
	assert.Equal(t, "charger_id", withField.Details["field"])
}
