package handlers

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	httpctx "idgate/internal/http/ctx"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Envelope is the uniform shape of every /api response.
type Envelope struct {
	Success          bool        `json:"success"`
	Data             interface{} `json:"data"`
	Error            *ErrorBody  `json:"error"`
	Cached           bool        `json:"cached,omitempty"`
	Timestamp        string      `json:"timestamp"`
	ProcessingTimeMs float64     `json:"processing_time_ms"`
}

func writeEnvelope(ctx *fasthttp.RequestCtx, status int, env Envelope) {
	env.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	if start, ok := httpctx.StartTimeFromCtx(ctx); ok {
		env.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	}

	body, err := json.Marshal(env)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"data":null,"error":{"code":500,"message":"Internal server error","type":"InternalServerError"}}`)
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// WriteSuccess writes a 200 envelope around data.
func WriteSuccess(ctx *fasthttp.RequestCtx, data interface{}) {
	writeEnvelope(ctx, fasthttp.StatusOK, Envelope{Success: true, Data: data})
}

// WriteCached writes a 200 envelope flagged as served from cache.
func WriteCached(ctx *fasthttp.RequestCtx, data interface{}) {
	writeEnvelope(ctx, fasthttp.StatusOK, Envelope{Success: true, Data: data, Cached: true})
}

// WriteError writes an error envelope with the given HTTP status.
func WriteError(ctx *fasthttp.RequestCtx, status int, message, errType string) {
	writeEnvelope(ctx, status, Envelope{
		Error: &ErrorBody{Code: status, Message: message, Type: errType},
	})
}
