package log_test

import (
	"bytes"
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/multipath-go/log"
)

func Test_stdLogger(t *testing.T) {
	testee := NewStd()
	ctx := context.Background()
	require.NotPanics(t, func() { testee.Infof(ctx, "message") })
	require.NotPanics(t, func() { testee.Warnf(ctx, "message") })
	require.NotPanics(t, func() { testee.Errorf(ctx, "message") })
	require.NotPanics(t, func() { testee.Debugf(ctx, "message") })
}

func Example_stdLogger() {
	ctx := WithTrackPathID(WithTrackConnID(context.Background(), 42), 1)
	testee := NewStdWith(log.New(os.Stdout, "", log.Lshortfile))
	testee.Infof(ctx, "message %s", "info")
	testee.Warnf(ctx, "message %s", "warn")
	testee.Errorf(ctx, "message %s", "error")
	testee.Debugf(ctx, "message %s", "debug")

	// Output:
	// logger_std_test.go:25: INFO: track-conn-id:000000000000002a	track-path-id:1	message info
	// logger_std_test.go:26: WARN: track-conn-id:000000000000002a	track-path-id:1	message warn
	// logger_std_test.go:27: ERROR: track-conn-id:000000000000002a	track-path-id:1	message error
	// logger_std_test.go:28: DEBUG: track-conn-id:000000000000002a	track-path-id:1	message debug
}

func Test_stdLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	testee := NewStdWithLevel(log.New(&buf, "", 0), LevelWarn)
	ctx := context.Background()
	testee.Debugf(ctx, "debug")
	testee.Infof(ctx, "info")
	testee.Warnf(ctx, "warn %d", 1)
	testee.Errorf(ctx, "error %d", 2)
	assert.Equal(t, "WARN: warn 1\nERROR: error 2\n", buf.String())
	assert.Equal(t, "Level(9)", Level(9).String())
}
