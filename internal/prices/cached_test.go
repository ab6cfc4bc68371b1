package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	prices []float64
	errs   []error
	calls  int
}

func (s *scriptedProvider) CurrentPrice(ctx context.Context) (float64, error) {
	i := s.calls
	s.calls++
	if i >= len(s.prices) {
		i = len(s.prices) - 1
	}
	return s.prices[i], s.errs[i]
}

func Test_CachedProvider_MemoizesWithinTTL(t *testing.T) {
	upstream := &scriptedProvider{
		prices: []float64{2000, 2100},
		errs:   []error{nil, nil},
	}
	p := NewCachedProvider(upstream, time.Hour, 0, zerolog.Nop())

	price, err := p.CurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2000.0, price)

	price, err = p.CurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2000.0, price, "second call within TTL must not refetch")
	assert.Equal(t, 1, upstream.calls)
}

func Test_CachedProvider_FallbackWhenNeverFetched(t *testing.T) {
	upstream := &scriptedProvider{
		prices: []float64{0},
		errs:   []error{errors.New("api down")},
	}
	p := NewCachedProvider(upstream, time.Minute, 1234.5, zerolog.Nop())

	price, err := p.CurrentPrice(context.Background())
	require.NoError(t, err, "a price outage must not surface as an error")
	assert.Equal(t, 1234.5, price)
}

func Test_CachedProvider_StaleValueBeatsFallback(t *testing.T) {
	upstream := &scriptedProvider{
		prices: []float64{2000, 0},
		errs:   []error{nil, errors.New("api down")},
	}
	p := NewCachedProvider(upstream, 0, 50, zerolog.Nop())

	price, err := p.CurrentPrice(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2000.0, price)

	// TTL of zero forces a refetch; the upstream now fails and the last
	// known price is served instead of the fallback constant.
	price, err = p.CurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2000.0, price)
}

func Test_CachedProvider_RefreshPropagatesError(t *testing.T) {
	upstream := &scriptedProvider{
		prices: []float64{0},
		errs:   []error{errors.New("api down")},
	}
	p := NewCachedProvider(upstream, time.Minute, 10, zerolog.Nop())

	err := p.Refresh(context.Background())
	require.Error(t, err, "the scheduler logs refresh failures, so Refresh reports them")
}

func Test_Static_ReturnsFixedPrice(t *testing.T) {
	price, err := Static(42).CurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, price)
}
