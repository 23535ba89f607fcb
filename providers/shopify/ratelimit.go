package shopify

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/transport"
)

const defaultRetryAfter429 = 2 * time.Second

// ResponseMeta is the rate limit view of one Admin API response.
type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	Metadata   map[string]any
	RetryAfter *time.Duration
	Throttled  bool
}

type costExtension struct {
	Extensions struct {
		Cost struct {
			RequestedQueryCost int `json:"requestedQueryCost"`
			ActualQueryCost    int `json:"actualQueryCost"`
			ThrottleStatus     struct {
				MaximumAvailable   float64 `json:"maximumAvailable"`
				CurrentlyAvailable float64 `json:"currentlyAvailable"`
				RestoreRate        float64 `json:"restoreRate"`
			} `json:"throttleStatus"`
		} `json:"cost"`
	} `json:"extensions"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

func NormalizeAdminAPIResponse(_ context.Context, response core.TransportResponse) (ResponseMeta, error) {
	meta := ResponseMeta{
		StatusCode: response.StatusCode,
		Headers:    copyStringMap(response.Headers),
		Metadata:   copyAnyMap(response.Metadata),
	}

	if requestID := headerValue(meta.Headers, "x-request-id"); requestID != "" {
		meta.Metadata["shopify_request_id"] = requestID
	}
	if apiVersion := headerValue(meta.Headers, "x-shopify-api-version"); apiVersion != "" {
		meta.Metadata["shopify_api_version"] = apiVersion
	}

	if used, limit, ok := parseShopifyCallLimit(headerValue(meta.Headers, "x-shopify-shop-api-call-limit")); ok {
		remaining := max(limit-used, 0)
		meta.Headers["X-RateLimit-Limit"] = strconv.Itoa(limit)
		meta.Headers["X-RateLimit-Remaining"] = strconv.Itoa(remaining)
		meta.Metadata["shopify_api_call_used"] = used
		meta.Metadata["shopify_api_call_limit"] = limit
		meta.Metadata["shopify_api_call_remaining"] = remaining
	}

	var cost costExtension
	if len(response.Body) > 0 && json.Unmarshal(response.Body, &cost) == nil {
		status := cost.Extensions.Cost.ThrottleStatus
		if status.MaximumAvailable > 0 {
			meta.Metadata["shopify_query_cost"] = cost.Extensions.Cost.ActualQueryCost
			if cost.Extensions.Cost.ActualQueryCost == 0 {
				meta.Metadata["shopify_query_cost"] = cost.Extensions.Cost.RequestedQueryCost
			}
			meta.Metadata["shopify_cost_available"] = status.CurrentlyAvailable
			meta.Metadata["shopify_cost_maximum"] = status.MaximumAvailable
			meta.Metadata["shopify_cost_restore_rate"] = status.RestoreRate
		}
		for _, gqlErr := range cost.Errors {
			if strings.EqualFold(gqlErr.Extensions.Code, "THROTTLED") || transport.IsThrottleMessage(gqlErr.Message) {
				meta.Throttled = true
				if wait, ok := restoreWait(cost); ok {
					meta.RetryAfter = &wait
					meta.Metadata["shopify_retry_after_source"] = "cost"
				}
				break
			}
		}
	}

	if retryAfter, ok := parseRetryAfter(meta.Headers); ok {
		meta.RetryAfter = &retryAfter
		meta.Metadata["shopify_retry_after_source"] = "header"
	}
	if meta.StatusCode == 429 {
		meta.Throttled = true
		if meta.RetryAfter == nil {
			retryAfter := defaultRetryAfter429
			meta.RetryAfter = &retryAfter
			meta.Metadata["shopify_retry_after_source"] = "default"
		}
	}
	if meta.RetryAfter != nil {
		meta.Metadata["shopify_retry_after_seconds"] = int64(meta.RetryAfter.Seconds())
	}
	if reason := readErrorType(response.Body); reason != "" {
		meta.Metadata["shopify_error_type"] = reason
	}
	return meta, nil
}

// LoggingObserver logs the rate limit state of every Admin API response.
func LoggingObserver(logger core.Logger) transport.ResponseObserver {
	return func(ctx context.Context, response core.TransportResponse) {
		if logger == nil {
			return
		}
		meta, err := NormalizeAdminAPIResponse(ctx, response)
		if err != nil {
			return
		}
		fields := []any{"status", meta.StatusCode}
		for _, key := range []string{
			"shopify_request_id",
			"shopify_api_call_remaining",
			"shopify_cost_available",
			"shopify_query_cost",
			"shopify_retry_after_seconds",
		} {
			if value, ok := meta.Metadata[key]; ok {
				fields = append(fields, key, value)
			}
		}
		if meta.Throttled {
			logger.WithContext(ctx).Warn("shopify admin api throttled", fields...)
			return
		}
		logger.WithContext(ctx).Trace("shopify admin api response", fields...)
	}
}

func restoreWait(cost costExtension) (time.Duration, bool) {
	status := cost.Extensions.Cost.ThrottleStatus
	needed := float64(cost.Extensions.Cost.RequestedQueryCost) - status.CurrentlyAvailable
	if needed <= 0 || status.RestoreRate <= 0 {
		return 0, false
	}
	return time.Duration(needed / status.RestoreRate * float64(time.Second)), true
}

func parseShopifyCallLimit(value string) (used int, limit int, ok bool) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	used, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || used < 0 {
		return 0, 0, false
	}
	limit, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || limit <= 0 {
		return 0, 0, false
	}
	return used, limit, true
}

func parseRetryAfter(headers map[string]string) (time.Duration, bool) {
	raw := strings.TrimSpace(headerValue(headers, "retry-after"))
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func readErrorType(body []byte) string {
	lowered := strings.ToLower(strings.TrimSpace(string(body)))
	switch {
	case lowered == "":
		return ""
	case strings.Contains(lowered, "throttl"):
		return "throttle"
	case strings.Contains(lowered, "rate limit"):
		return "rate_limit"
	}
	return ""
}

func headerValue(headers map[string]string, key string) string {
	for candidate, value := range headers {
		if strings.EqualFold(candidate, key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func copyStringMap(input map[string]string) map[string]string {
	out := make(map[string]string, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func copyAnyMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
