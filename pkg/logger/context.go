package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	tickIDKey ctxKey = iota
	campaignIDKey
)

// WithTickID stores the delivery tick id in ctx.
func WithTickID(ctx context.Context, tickID string) context.Context {
	return context.WithValue(ctx, tickIDKey, tickID)
}

// WithCampaignID stores the campaign id in ctx.
func WithCampaignID(ctx context.Context, campaignID string) context.Context {
	return context.WithValue(ctx, campaignIDKey, campaignID)
}

// TickID extracts tick_id set by WithTickID.
func TickID(ctx context.Context) (slog.Attr, bool) {
	return stringAttr(ctx, tickIDKey, "tick_id")
}

// CampaignID extracts campaign_id set by WithCampaignID.
func CampaignID(ctx context.Context) (slog.Attr, bool) {
	return stringAttr(ctx, campaignIDKey, "campaign_id")
}

// DefaultExtractors are the extractors every mailpipe command installs.
func DefaultExtractors() []ContextExtractor {
	return []ContextExtractor{TickID, CampaignID}
}

func stringAttr(ctx context.Context, key ctxKey, name string) (slog.Attr, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return slog.Attr{}, false
	}
	return slog.String(name, v), true
}
