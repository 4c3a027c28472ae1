package apierror

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSON(t *testing.T) {
	err := Conflict("Key K1 is on loan").
		WithCode(CodeKeyOnLoan).
		WithDetails(FieldError{Field: "holder", Message: "Ann Lee"})

	var got struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string       `json:"code"`
			Message string       `json:"message"`
			Details []FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(err.ToJSON(), &got))

	assert.False(t, got.Success)
	assert.Equal(t, CodeKeyOnLoan, got.Error.Code)
	assert.Equal(t, "Key K1 is on loan", got.Error.Message)
	require.Len(t, got.Error.Details, 1)
	assert.Equal(t, "holder", got.Error.Details[0].Field)
	assert.Equal(t, http.StatusConflict, err.StatusCode)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, "Access denied", Forbidden("").Message)
	assert.Equal(t, http.StatusGone, Gone("").StatusCode)
	assert.Equal(t, CodeRequestLapsed, Gone("").Code)
	assert.Equal(t, "Too Many Requests", New(http.StatusTooManyRequests, "RATE_LIMITED", "").Message)
	assert.NotContains(t, string(BadRequest("x").ToJSON()), "details")
}
