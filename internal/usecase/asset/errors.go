package asset

import "errors"

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrNotReady      = errors.New("asset is not ready")
	ErrNotVideo      = errors.New("asset is not a video")
	ErrEmptyContent  = errors.New("content is empty")
	ErrInvalidURL    = errors.New("url must be absolute http(s)")
)
