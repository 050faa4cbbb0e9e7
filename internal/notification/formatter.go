// Package notification turns build-server events into browser notification messages.
package notification

import (
	"crypto"
	_ "crypto/md5"
	"encoding/base64"
	"log/slog"

	"github.com/pscheid92/buildnotify/internal/domain"
)

// tagHash digests title+body into the dedup tag. Replaced in tests.
var tagHash = crypto.MD5

// Format builds a message from a status line and a subject. The tag depends only
// on status and subject, so identical notifications collapse on the client.
func Format(status string, icon domain.Icon, subject, url string) domain.Message {
	return domain.Message{
		Title:                 status,
		Body:                  subject,
		Tag:                   dedupTag(status, subject),
		Icon:                  icon,
		URL:                   url,
		DisplayTimeoutSeconds: domain.DefaultDisplayTimeoutSeconds,
	}
}

func dedupTag(title, body string) string {
	if !tagHash.Available() {
		slog.Warn("Dedup tag hash unavailable, using plain text tag", "hash", tagHash.String())
		return title + body
	}
	h := tagHash.New()
	h.Write([]byte(title + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
