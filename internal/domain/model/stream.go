package model

import (
	"net/url"
	"strings"
	"time"
)

// StreamStatus is the answer of the liveness check for one channel URL.
type StreamStatus struct {
	IsLive     bool        `json:"isLive"`
	StreamData *StreamData `json:"streamData,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type StreamData struct {
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewerCount"`
	GameName     string    `json:"gameName"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	StartedAt    time.Time `json:"startedAt"`
}

// TwitchLogin extracts the channel login from a twitch.tv URL: the last path
// segment, lower-cased. ok is false when the URL is not a twitch.tv channel.
func TwitchLogin(streamURL string) (login string, ok bool) {
	raw := strings.TrimSpace(streamURL)
	if !strings.Contains(strings.ToLower(raw), "twitch.tv") {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(strings.ToLower(u.Hostname()), "twitch.tv") {
		return "", false
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "", false
	}
	segs := strings.Split(path, "/")
	return strings.ToLower(segs[len(segs)-1]), true
}

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeWarning NoticeLevel = "warning"
	NoticeInfo    NoticeLevel = "info"
)

// Notification is a fire-and-forget message for the viewer.
type Notification struct {
	ID        string      `json:"id"`
	Level     NoticeLevel `json:"type"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	OrderID   string      `json:"orderId,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}
