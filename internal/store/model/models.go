package model

import (
	"database/sql"
	"time"
)

// RequestLog is one proxied exchange, inserted when the request completes.
type RequestLog struct {
	ID               string         `db:"id" json:"id"`
	TokenPrefix      string         `db:"token_prefix" json:"token_prefix"`
	Model            string         `db:"model" json:"model"`
	UpstreamModel    string         `db:"upstream_model" json:"upstream_model"`
	ProviderName     string         `db:"provider_name" json:"provider_name"`
	ProviderType     string         `db:"provider_type" json:"provider_type"`
	Stream           bool           `db:"stream" json:"stream"`
	Status           string         `db:"status" json:"status"` // 'ok' or 'error'
	ErrorDetail      sql.NullString `db:"error_detail" json:"error_detail,omitempty"`
	FinishReason     string         `db:"finish_reason" json:"finish_reason"`
	PromptTokens     int            `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int            `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int            `db:"total_tokens" json:"total_tokens"`
	LatencyMS        int64          `db:"latency_ms" json:"latency_ms"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// DailyStats aggregates request volume per day.
type DailyStats struct {
	Day         string `db:"day" json:"day"`
	Requests    int64  `db:"requests" json:"requests"`
	TotalTokens int64  `db:"total_tokens" json:"total_tokens"`
	Errors      int64  `db:"errors" json:"errors"`
}
