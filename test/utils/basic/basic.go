package basic

import (
	"os"
	"strings"
	"testing"

	"github.com/khenidak/etcdsession/pkg/config"
)

// ETCDSESSION_TEST_ENDPOINTS (comma separated) points integration
// tests at an already running cluster instead of an embedded one.
const testEndpointsEnv = "ETCDSESSION_TEST_ENDPOINTS"

func ExternalEndpoints() []string {
	v := os.Getenv(testEndpointsEnv)
	if len(v) == 0 {
		return nil
	}
	out := make([]string, 0)
	for _, ep := range strings.Split(v, ",") {
		if ep = strings.TrimSpace(ep); len(ep) > 0 {
			out = append(out, ep)
		}
	}
	return out
}

// creates a test config listening on a random loopback port with an
// initialized runtime.
func MakeTestConfig(t testing.TB) *config.Config {
	t.Helper()
	c := config.NewConfig()
	c.ListenAddress = "tcp://127.0.0.1:0"

	if err := c.ValidateListener(); err != nil {
		t.Fatalf("failed to validate config:%v", err)
	}

	if err := c.InitRuntime(); err != nil {
		t.Fatalf("failed to init runtime with err:%v", err)
	}
	return c
}
