package utils

import (
	"fmt"
	"math/rand"
	"syscall"
	"testing"
	"time"

	"go.etcd.io/etcd/clientv3"

	"github.com/khenidak/etcdsession/pkg/backend"
	"github.com/khenidak/etcdsession/pkg/frontend"

	basictestutils "github.com/khenidak/etcdsession/test/utils/basic"
)

var letterRunes = []rune("abcdefghijklmnopqrstuvwxyz0123456789")

func init() {
	rand.Seed(time.Now().UnixNano())
}

type TestApp struct {
	Frontend frontend.Frontend
	Backend  backend.Backend
	// Stop stops the listener and waits for it to be done
	Stop func()
}

// creates a test etcd listener on top of an in memory backend
func CreateTestApp(t testing.TB, opts ...backend.Option) *TestApp {
	t.Helper()
	c := basictestutils.MakeTestConfig(t)
	be := backend.NewBackend(opts...)

	fe, err := frontend.NewFrontend(c, be)
	if err != nil {
		t.Fatalf("failed to create frontend with err:%v", err)
	}

	err = fe.StartListening()
	if err != nil {
		t.Fatalf("faliled to start listening with err:%v", err)
	}

	stopped := false
	return &TestApp{
		Frontend: fe,
		Backend:  be,
		Stop: func() {
			if stopped {
				return
			}
			stopped = true
			c.Runtime.Stop <- syscall.SIGINT
			t.Logf("test app - stop signal sent")
			<-c.Runtime.Done
		},
	}
}

func MakeTestEtcdClient(t testing.TB, address string) *clientv3.Client {
	t.Helper()
	clientConfig := clientv3.Config{
		Endpoints:   []string{address},
		DialTimeout: 5 * time.Second,
	}

	cli, err := clientv3.New(clientConfig)
	if err != nil {
		t.Fatalf("failed to create etcd client with err:%v", err)
	}

	return cli
}

func RandStringRunes(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(b)
}

// generates a key, makes sure that it has a / in the key name
func RandKey(n int) string {
	half := (n - 1) / 2

	return fmt.Sprintf("/%s/%s", RandStringRunes(half), RandStringRunes(half))
}
