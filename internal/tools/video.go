package tools

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoData derives public links and thumbnails for a YouTube video.
type VideoData struct{}

// Thumbnail is one preview image size.
type Thumbnail struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// VideoInfo is the video data output.
type VideoInfo struct {
	VideoID    string      `json:"video_id"`
	WatchURL   string      `json:"watch_url"`
	ShortURL   string      `json:"short_url"`
	EmbedURL   string      `json:"embed_url"`
	Thumbnails []Thumbnail `json:"thumbnails"`
}

var thumbnailSizes = []Thumbnail{
	{Quality: "default", Width: 120, Height: 90},
	{Quality: "mqdefault", Width: 320, Height: 180},
	{Quality: "hqdefault", Width: 480, Height: 360},
	{Quality: "sddefault", Width: 640, Height: 480},
	{Quality: "maxresdefault", Width: 1280, Height: 720},
}

func (VideoData) ID() string { return idVideoData }

func (VideoData) Run(_ context.Context, req Request) (any, error) {
	input, errInput := requireInput(req, 300)
	if errInput != nil {
		return nil, errInput
	}
	id, ok := ParseVideoID(input)
	if !ok {
		return nil, fmt.Errorf("%w: not a YouTube video id or link", ErrInvalidInput)
	}
	return DescribeVideo(id), nil
}

// DescribeVideo builds the links for a validated video id.
func DescribeVideo(id string) VideoInfo {
	info := VideoInfo{
		VideoID:    id,
		WatchURL:   "https://www.youtube.com/watch?v=" + id,
		ShortURL:   "https://youtu.be/" + id,
		EmbedURL:   "https://www.youtube.com/embed/" + id,
		Thumbnails: make([]Thumbnail, 0, len(thumbnailSizes)),
	}
	for _, size := range thumbnailSizes {
		size.URL = "https://i.ytimg.com/vi/" + id + "/" + size.Quality + ".jpg"
		info.Thumbnails = append(info.Thumbnails, size)
	}
	return info
}

// ParseVideoID accepts a bare id or a watch, short, shorts, embed or live link.
func ParseVideoID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, true
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, errParse := url.Parse(raw)
	if errParse != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var candidate string
	switch host {
	case "youtu.be":
		candidate = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "shorts", "embed", "live", "v":
				candidate = parts[1]
			}
		}
	}
	if !videoIDPattern.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}
