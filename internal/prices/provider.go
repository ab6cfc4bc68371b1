package prices

import "context"

// Provider supplies the current USD price of the chain's native asset.
type Provider interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

// Static is a fixed-price provider, used in tests and as the terminal
// fallback when no upstream source is configured.
type Static float64

func (s Static) CurrentPrice(ctx context.Context) (float64, error) {
	return float64(s), nil
}
