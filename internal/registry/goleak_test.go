package registry

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures each test's connections are disconnected and their
// ingest watch goroutines exit before the binary exits.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
