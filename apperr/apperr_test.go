package apperr

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatusErrorRetryability(t *testing.T) {
	cases := []struct {
		code      int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, c := range cases {
		err := HTTPStatusError(c.code)
		require.Equal(t, c.code, err.Code)
		require.Equal(t, c.retryable, err.Retryable, "code %d", c.code)
		require.Equal(t, HTTPStatus, err.Kind)
	}
}
