package model

import (
	"path"
	"strconv"
	"time"
)

type Asset struct {
	ID             int64      `json:"id"`
	ChannelID      int64      `json:"channel_id"`
	UserID         *int64     `json:"user_id,omitempty"`
	Filename       *string    `json:"filename,omitempty"`
	Extension      *string    `json:"extension,omitempty"`
	MimeType       *string    `json:"mime_type,omitempty"`
	FileSize       *int64     `json:"file_size,omitempty"`
	SourceURL      *string    `json:"source_url,omitempty"`
	CacheKey       *string    `json:"cache_key,omitempty"`
	Created        time.Time  `json:"created"`
	LastReference  time.Time  `json:"last_reference"`
	InFlight       bool       `json:"in_flight"`
	IsCached       bool       `json:"is_cached"`
	Failed         bool       `json:"failed"`
	FailureMessage *string    `json:"failure_message,omitempty"`
	FetchedAt      *time.Time `json:"fetched_at,omitempty"`
}

// Ready reports whether the backing file can be served.
func (a *Asset) Ready() bool {
	return !a.InFlight && !a.Failed
}

// Fetched reports whether a complete copy was fetched and can be served
// while a newer one is downloaded.
func (a *Asset) Fetched() bool {
	return a.Ready() && a.FetchedAt != nil
}

func (a *Asset) Ext() string {
	if a.Extension == nil {
		return ""
	}
	return *a.Extension
}

// ObjectKey is the storage key of the asset, relative to the storage root.
func (a *Asset) ObjectKey() string {
	return path.Join(strconv.FormatInt(a.ChannelID, 10), strconv.FormatInt(a.ID, 10)+a.Ext())
}

// VersionKey is the key of the archived copy of the asset last modified at t.
func (a *Asset) VersionKey(t time.Time) string {
	name := strconv.FormatInt(a.ID, 10) + "_" + strconv.FormatInt(t.Unix(), 10) + a.Ext()
	return path.Join(strconv.FormatInt(a.ChannelID, 10), name)
}

// VersionPrefix matches every archived copy of the asset.
func (a *Asset) VersionPrefix() string {
	return path.Join(strconv.FormatInt(a.ChannelID, 10), strconv.FormatInt(a.ID, 10)+"_")
}

// DisplayName returns the original filename, stem and extension joined.
func (a *Asset) DisplayName() string {
	name := ""
	if a.Filename != nil {
		name = *a.Filename
	}
	return name + a.Ext()
}

// SplitFilename splits "photo.jpg" into "photo" and ".jpg".
// A name without extension yields a nil extension.
func SplitFilename(filename string) (string, *string) {
	ext := path.Ext(filename)
	stem := filename[:len(filename)-len(ext)]
	if ext == "" || stem == "" {
		return filename, nil
	}
	return stem, &ext
}
