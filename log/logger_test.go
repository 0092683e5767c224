package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/aptpod/multipath-go/log"
)

func Test_genTrackID(t *testing.T) {
	for i := 0; i < 1000; i++ {
		require.Regexp(t, "^[0-9a-f]{8}$", GenTrackID())
	}
}

func TestTrackConnID(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, TrackConnID(ctx))
	ctx = WithTrackConnID(ctx, 42)
	require.Equal(t, "000000000000002a", TrackConnID(ctx))
}

func TestTrackPathID(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, TrackPathID(ctx))
	ctx = WithTrackPathID(ctx, 3)
	require.Equal(t, "3", TrackPathID(ctx))
}

func TestTrackSocketID(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, TrackSocketID(ctx))
	ctx = WithTrackSocketID(ctx)
	require.Regexp(t, "^[0-9a-f]{8}$", TrackSocketID(ctx))
}
