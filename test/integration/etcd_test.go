package integration

import (
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"go.etcd.io/etcd/embed"

	basictestutils "github.com/khenidak/etcdsession/test/utils/basic"
)

func freeURL(t *testing.T) url.URL {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port with err:%v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	u, err := url.Parse(fmt.Sprintf("http://%s", addr))
	if err != nil {
		t.Fatalf("failed to parse url with err:%v", err)
	}
	return *u
}

// startEtcd returns endpoints of a real etcd. An external cluster is used
// when ETCDSESSION_TEST_ENDPOINTS is set, otherwise a single member is
// embedded for the duration of the test.
func startEtcd(t *testing.T) ([]string, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration tests are skipped in short mode")
	}

	if endpoints := basictestutils.ExternalEndpoints(); len(endpoints) > 0 {
		return endpoints, func() {}
	}

	clientURL := freeURL(t)
	peerURL := freeURL(t)

	cfg := embed.NewConfig()
	cfg.Name = "etcdsession-test"
	cfg.Dir = t.TempDir()
	cfg.LCUrls, cfg.ACUrls = []url.URL{clientURL}, []url.URL{clientURL}
	cfg.LPUrls, cfg.APUrls = []url.URL{peerURL}, []url.URL{peerURL}
	cfg.InitialCluster = cfg.InitialClusterFromName(cfg.Name)
	cfg.LogLevel = "error"

	e, err := embed.StartEtcd(cfg)
	if err != nil {
		t.Fatalf("failed to start embedded etcd with err:%v", err)
	}

	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(10 * time.Second):
		e.Server.Stop()
		t.Fatalf("embedded etcd did not become ready")
	}

	return []string{clientURL.String()}, e.Close
}
