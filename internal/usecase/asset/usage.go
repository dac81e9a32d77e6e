package asset

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

type usageSrv struct {
	repo port.AssetRepository
}

// compile-time check: *usageSrv must satisfy port.UsageReporter
var _ port.UsageReporter = (*usageSrv)(nil)

// NewUsageReporter constructs a port.UsageReporter implementation.
func NewUsageReporter(repo port.AssetRepository) port.UsageReporter {
	return &usageSrv{repo: repo}
}

func (s *usageSrv) Usage(ctx context.Context) ([]port.UsageOutput, error) {
	usage, err := s.repo.ChannelUsage(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]port.UsageOutput, 0, len(usage))
	for _, u := range usage {
		out = append(out, port.UsageOutput{
			ChannelUsage: u,
			TotalHuman:   humanize.IBytes(uint64(u.TotalBytes)),
			CachedShare:  u.CachedShare(),
		})
	}
	return out, nil
}

func (s *usageSrv) ChannelMimeUsage(ctx context.Context, channelID int64) ([]port.MimeUsageOutput, error) {
	usage, err := s.repo.MimeUsage(ctx, channelID)
	if err != nil {
		return nil, err
	}
	out := make([]port.MimeUsageOutput, 0, len(usage))
	for _, u := range usage {
		out = append(out, port.MimeUsageOutput{
			MimeUsage:  u,
			TotalHuman: humanize.IBytes(uint64(u.TotalBytes)),
		})
	}
	return out, nil
}
