package apierror

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantMessage string
		wantDetails string
	}{
		{
			name:        "error field",
			status:      http.StatusForbidden,
			body:        `{"error":"Only session creator can confirm bookings"}`,
			wantCode:    CodeForbidden,
			wantMessage: "Only session creator can confirm bookings",
		},
		{
			name:        "detail with code",
			status:      http.StatusUnauthorized,
			body:        `{"detail":"Given token not valid for any token type","code":"token_not_valid"}`,
			wantCode:    CodeUnauthorized,
			wantMessage: "Given token not valid for any token type",
			wantDetails: "token_not_valid",
		},
		{
			name:        "non field errors",
			status:      http.StatusBadRequest,
			body:        `{"non_field_errors":["This session is not available for booking"]}`,
			wantCode:    CodeBadRequest,
			wantMessage: "This session is not available for booking",
		},
		{
			name:        "field errors sorted",
			status:      http.StatusBadRequest,
			body:        `{"price":["Price must be non-negative"],"duration_minutes":["Duration must be positive"]}`,
			wantCode:    CodeBadRequest,
			wantMessage: "validation failed",
			wantDetails: "duration_minutes: Duration must be positive; price: Price must be non-negative",
		},
		{
			name:        "html body kept as details",
			status:      http.StatusBadGateway,
			body:        `<html>bad gateway</html>`,
			wantCode:    CodeServerError,
			wantMessage: "bad gateway",
			wantDetails: `<html>bad gateway</html>`,
		},
		{
			name:        "empty body",
			status:      http.StatusNotFound,
			wantCode:    CodeNotFound,
			wantMessage: "not found",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromResponse(tc.status, []byte(tc.body))
			assert.Equal(t, tc.wantCode, got.Code)
			assert.Equal(t, tc.wantMessage, got.Message)
			assert.Equal(t, tc.wantDetails, got.Details)
			assert.Equal(t, tc.status, got.HTTPStatus)
		})
	}
}

func TestStatusOfWrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("confirm booking: %w", New(CodeConflict, "already confirmed", "", http.StatusConflict))
	require.Equal(t, http.StatusConflict, StatusOf(err))
	require.Equal(t, 0, StatusOf(fmt.Errorf("plain")))
	require.Equal(t, "already confirmed", UserMessage(err, "fallback"))
	require.Equal(t, "fallback", UserMessage(fmt.Errorf("plain"), "fallback"))
}
