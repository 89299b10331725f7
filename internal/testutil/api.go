package testutil

import (
	"testing"

	"github.com/jaehyun-ko/newsight/internal/api"
	"github.com/jaehyun-ko/newsight/internal/core"
)

// SetupTestServer initializes a full core.App and api.Server for
// integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t)
	return api.NewServer(app), app
}
