package model

// ChannelUsage aggregates the storage consumed by one channel.
type ChannelUsage struct {
	ChannelID   int64 `json:"channel_id"`
	AssetCount  int64 `json:"asset_count"`
	TotalBytes  int64 `json:"total_bytes"`
	CachedBytes int64 `json:"cached_bytes"`
}

// CachedShare is the fraction of bytes held by cached assets.
func (u ChannelUsage) CachedShare() float64 {
	if u.TotalBytes == 0 {
		return 0
	}
	return float64(u.CachedBytes) / float64(u.TotalBytes)
}

// MimeUsage counts the assets of one mime type within a channel.
type MimeUsage struct {
	MimeType   string `json:"mime_type"`
	AssetCount int64  `json:"asset_count"`
	TotalBytes int64  `json:"total_bytes"`
}
