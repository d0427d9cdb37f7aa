package handlers

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	httpctx "idgate/internal/http/ctx"
	"idgate/internal/validator"
)

const maxBulkIDs = 100

type validateRequest struct {
	NationalID     string `json:"national_id"`
	IncludeDetails *bool  `json:"include_details"`
}

type bulkValidateRequest struct {
	NationalIDs    []string `json:"national_ids"`
	IncludeDetails bool     `json:"include_details"`
}

type bulkItemResult struct {
	NationalID        string             `json:"national_id"`
	IsValid           bool               `json:"is_valid"`
	BirthDate         string             `json:"birth_date,omitempty"`
	Age               int                `json:"age,omitempty"`
	Gender            string             `json:"gender,omitempty"`
	Governorate       string             `json:"governorate,omitempty"`
	GovernorateCode   string             `json:"governorate_code,omitempty"`
	Century           string             `json:"century,omitempty"`
	ValidationDetails *validator.Details `json:"validation_details,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// summaryFields reduces a full result to the compact shape returned when
// details were not requested.
func summaryFields(res *validator.Result) map[string]interface{} {
	return map[string]interface{}{
		"national_id": res.NationalID,
		"is_valid":    res.IsValid,
		"birth_date":  res.BirthDate,
		"age":         res.Age,
		"gender":      res.Gender,
	}
}

// ValidateHandler decodes a single national ID. Results are cached by the
// sanitized ID so repeat lookups skip the decoder.
func ValidateHandler(cache *validator.ResultCache) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req validateRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.NationalID == "" {
			WriteError(ctx, fasthttp.StatusBadRequest, "Invalid input data", "ValidationError")
			return
		}

		includeDetails := true
		if req.IncludeDetails != nil {
			includeDetails = *req.IncludeDetails
		}

		cleaned := validator.Sanitize(req.NationalID)

		if res, ok := cache.Get(ctx, cleaned); ok {
			httpctx.SetCacheHit(ctx)
			httpctx.SetValidationOutcome(ctx, true, 1)
			CountValidation(true)
			if includeDetails {
				WriteCached(ctx, res)
			} else {
				WriteCached(ctx, summaryFields(res))
			}
			return
		}

		res, err := validator.Validate(req.NationalID)
		if err != nil {
			httpctx.SetValidationOutcome(ctx, false, 1)
			CountValidation(false)
			WriteError(ctx, fasthttp.StatusUnprocessableEntity, err.Error(), "ValidationError")
			return
		}

		cache.Put(ctx, cleaned, res)

		httpctx.SetValidationOutcome(ctx, true, 1)
		CountValidation(true)
		if includeDetails {
			WriteSuccess(ctx, res)
		} else {
			WriteSuccess(ctx, summaryFields(res))
		}
	}
}

// BulkValidateHandler decodes up to 100 national IDs in one call. Items
// fail independently; the call itself succeeds if the batch was accepted.
func BulkValidateHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req bulkValidateRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, "Invalid input data", "ValidationError")
			return
		}
		if req.NationalIDs == nil {
			WriteError(ctx, fasthttp.StatusBadRequest, "national_ids must be a list", "ValidationError")
			return
		}
		if len(req.NationalIDs) > maxBulkIDs {
			WriteError(ctx, fasthttp.StatusBadRequest, "Maximum 100 national IDs allowed per request", "ValidationError")
			return
		}

		results := make([]bulkItemResult, 0, len(req.NationalIDs))
		for _, raw := range req.NationalIDs {
			res, err := validator.Validate(raw)
			if err != nil {
				CountValidation(false)
				results = append(results, bulkItemResult{
					NationalID: validator.Sanitize(raw),
					IsValid:    false,
					Error:      err.Error(),
				})
				continue
			}

			CountValidation(true)
			item := bulkItemResult{
				NationalID: res.NationalID,
				IsValid:    true,
				BirthDate:  res.BirthDate,
				Age:        res.Age,
				Gender:     res.Gender,
			}
			if req.IncludeDetails {
				item.Governorate = res.Governorate
				item.GovernorateCode = res.GovernorateCode
				item.Century = res.Century
				details := res.ValidationDetails
				item.ValidationDetails = &details
			}
			results = append(results, item)
		}

		httpctx.SetValidationOutcome(ctx, true, len(results))
		WriteSuccess(ctx, map[string]interface{}{
			"total_processed": len(results),
			"results":         results,
		})
	}
}
