package asset

import (
	"context"
	"fmt"
	"hash/adler32"

	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/skip2/go-qrcode"
)

const qrCodeSize = 512

// CacheQRCode caches a PNG QR code encoding payload. Codes are named after
// a checksum of their payload, so each payload is rendered once.
func (s *cacheManagerSrv) CacheQRCode(ctx context.Context, payload string) (*model.Asset, error) {
	if payload == "" {
		return nil, ErrEmptyContent
	}
	filename := qrCodeFilename(payload)

	a, err := s.GetCachedFile(ctx, filename)
	if err != nil {
		return nil, err
	}
	if a != nil && a.Ready() {
		return a, nil
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return s.CacheFile(ctx, png, filename)
}

func qrCodeFilename(payload string) string {
	return fmt.Sprintf("qrcode_%08x.png", adler32.Checksum([]byte(payload)))
}
