package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler()
	require.False(t, h.startTime.IsZero())

	c, w := handlerContext()
	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "TripDesk Billing API", data["name"])
	assert.Equal(t, "1.0.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
	assert.NotEmpty(t, data["uptime"])
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler()

	c, w := handlerContext()
	h.Ping(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "pong", data["message"])

	_, err := time.Parse(time.RFC3339, data["timestamp"].(string))
	assert.NoError(t, err)
}
