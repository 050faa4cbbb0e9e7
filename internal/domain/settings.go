package domain

import "context"

// SettingsRepository persists per-user notification settings. Values are kept
// raw so that malformed legacy entries can be tolerated by the reader.
type SettingsRepository interface {
	GetDisplayTimeout(ctx context.Context, user UserID) (string, error)
	SetDisplayTimeout(ctx context.Context, user UserID, value string) error
}

// DisplayTimeoutSource resolves the display timeout for one user. It never fails;
// missing or unparseable values resolve to DefaultDisplayTimeoutSeconds.
type DisplayTimeoutSource interface {
	DisplayTimeoutSeconds(ctx context.Context, user UserID) int
}
