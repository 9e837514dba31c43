package telemetry

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartAndShutdownDevMode(t *testing.T) {
	// stdouttrace.New writes every span to os.Stdout; redirect it so the
	// test doesn't spam the test runner's output.
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	ctx := context.Background()
	tel, err := New(ctx, "gitdb-test", "0.0.0-test", true)
	require.NoError(t, err)

	_, span := tel.Start(ctx, "unit-test-span")
	span.End()

	require.NoError(t, tel.Shutdown(ctx))

	w.Close()
	out, _ := io.ReadAll(r)
	assert.Contains(t, string(out), "unit-test-span")
}
