package handlers

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func postJSON(body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/validate")
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetBodyString(body)
	return &ctx
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	return env
}

func TestValidateHandlerSuccess(t *testing.T) {
	handler := ValidateHandler(nil)

	ctx := postJSON(`{"national_id":"29001010101231"}`)
	handler(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	env := decodeBody(t, ctx)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.False(t, env.Cached)

	data := env.Data.(map[string]interface{})
	assert.Equal(t, "29001010101231", data["national_id"])
	assert.Equal(t, true, data["is_valid"])
	assert.Equal(t, "1990-01-01", data["birth_date"])
	assert.Equal(t, "Male", data["gender"])
	assert.Equal(t, "Cairo", data["governorate"])
	assert.Contains(t, data, "validation_details")
}

func TestValidateHandlerSummaryWithoutDetails(t *testing.T) {
	handler := ValidateHandler(nil)

	ctx := postJSON(`{"national_id":"29001010101231","include_details":false}`)
	handler(ctx)

	env := decodeBody(t, ctx)
	data := env.Data.(map[string]interface{})
	assert.Contains(t, data, "national_id")
	assert.Contains(t, data, "gender")
	assert.NotContains(t, data, "governorate")
	assert.NotContains(t, data, "validation_details")
}

func TestValidateHandlerInvalidID(t *testing.T) {
	handler := ValidateHandler(nil)

	ctx := postJSON(`{"national_id":"12345"}`)
	handler(ctx)

	assert.Equal(t, fasthttp.StatusUnprocessableEntity, ctx.Response.StatusCode())

	env := decodeBody(t, ctx)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ValidationError", env.Error.Type)
	assert.Equal(t, fasthttp.StatusUnprocessableEntity, env.Error.Code)
}

func TestValidateHandlerBadRequests(t *testing.T) {
	handler := ValidateHandler(nil)

	for _, body := range []string{``, `not json`, `{}`, `{"national_id":""}`} {
		ctx := postJSON(body)
		handler(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode(), "body %q", body)
	}
}

func TestBulkValidateHandlerMixedBatch(t *testing.T) {
	handler := BulkValidateHandler()

	ctx := postJSON(`{"national_ids":["29001010101231","12345"]}`)
	handler(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	env := decodeBody(t, ctx)
	assert.True(t, env.Success)

	data := env.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["total_processed"])

	results := data["results"].([]interface{})
	require.Len(t, results, 2)

	first := results[0].(map[string]interface{})
	assert.Equal(t, true, first["is_valid"])
	assert.NotContains(t, first, "governorate")

	second := results[1].(map[string]interface{})
	assert.Equal(t, false, second["is_valid"])
	assert.Contains(t, second, "error")
}

func TestBulkValidateHandlerWithDetails(t *testing.T) {
	handler := BulkValidateHandler()

	ctx := postJSON(`{"national_ids":["29001010101231"],"include_details":true}`)
	handler(ctx)

	env := decodeBody(t, ctx)
	results := env.Data.(map[string]interface{})["results"].([]interface{})
	first := results[0].(map[string]interface{})
	assert.Equal(t, "Cairo", first["governorate"])
	assert.Contains(t, first, "validation_details")
}

func TestBulkValidateHandlerRejectsOversizedBatch(t *testing.T) {
	handler := BulkValidateHandler()

	ids := `"29001010101231"`
	for i := 0; i < 100; i++ {
		ids += `,"29001010101231"`
	}
	ctx := postJSON(fmt.Sprintf(`{"national_ids":[%s]}`, ids))
	handler(ctx)

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestBulkValidateHandlerRequiresList(t *testing.T) {
	handler := BulkValidateHandler()

	ctx := postJSON(`{}`)
	handler(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestBulkValidateHandlerEmptyListIsAccepted(t *testing.T) {
	handler := BulkValidateHandler()

	ctx := postJSON(`{"national_ids":[]}`)
	handler(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	env := decodeBody(t, ctx)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, float64(0), data["total_processed"])
}

func TestWriteErrorEnvelopeShape(t *testing.T) {
	var ctx fasthttp.RequestCtx
	WriteError(&ctx, fasthttp.StatusForbidden, "Access denied", "ip_not_allowed")

	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))

	env := decodeBody(t, &ctx)
	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	require.NotNil(t, env.Error)
	assert.Equal(t, fasthttp.StatusForbidden, env.Error.Code)
	assert.Equal(t, "Access denied", env.Error.Message)
	assert.Equal(t, "ip_not_allowed", env.Error.Type)
	assert.NotEmpty(t, env.Timestamp)
}
