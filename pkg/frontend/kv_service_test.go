package frontend_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.etcd.io/etcd/clientv3"

	testutils "github.com/khenidak/etcdsession/test/utils"
)

func getClient(tb testing.TB) (*clientv3.Client, *testutils.TestApp) {
	app := testutils.CreateTestApp(tb)
	client := testutils.MakeTestEtcdClient(tb, app.Frontend.Addr())
	return client, app
}

func BenchmarkPut(b *testing.B) {
	client, app := getClient(b)
	defer app.Stop()
	defer client.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		integrationPut(b, client)
	}
}

func TestPutGet(t *testing.T) {
	client, app := getClient(t)
	defer app.Stop()
	defer client.Close()
	integrationPut(t, client)
}

func integrationPut(t testing.TB, client *clientv3.Client) {
	k := testutils.RandKey(16)
	v := testutils.RandStringRunes(16)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Put(ctx, k, v)
	if err != nil {
		t.Fatalf("failed to put with err:%v", err)
	}

	getResp, err := client.Get(ctx, k)
	if err != nil {
		t.Fatalf("failed to get after put with err:%v", err)
	}

	if getResp.Count != 1 || string(getResp.Kvs[0].Value) != v {
		t.Fatalf("value after put is not as expected")
	}
	if getResp.Kvs[0].Version != 1 {
		t.Fatalf("expected version 1 got %v", getResp.Kvs[0].Version)
	}
}

func TestRangePrefix(t *testing.T) {
	client, app := getClient(t)
	defer app.Stop()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prefix := fmt.Sprintf("/%s/", testutils.RandStringRunes(8))
	keys := []string{prefix + "a", prefix + "b", prefix + "c"}
	for _, k := range keys {
		if _, err := client.Put(ctx, k, k); err != nil {
			t.Fatalf("failed to put with err:%v", err)
		}
	}
	if _, err := client.Put(ctx, "/outside", "x"); err != nil {
		t.Fatalf("failed to put with err:%v", err)
	}

	resp, err := client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		t.Fatalf("failed to list with err:%v", err)
	}
	if len(resp.Kvs) != len(keys) {
		t.Fatalf("expected %v keys got %v", len(keys), len(resp.Kvs))
	}
	for i, kv := range resp.Kvs {
		if string(kv.Key) != keys[i] {
			t.Fatalf("expected key %v at %v got %v", keys[i], i, string(kv.Key))
		}
	}

	limited, err := client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithLimit(2))
	if err != nil {
		t.Fatalf("failed to list with err:%v", err)
	}
	if len(limited.Kvs) != 2 || !limited.More || limited.Count != 3 {
		t.Fatalf("unexpected limited response kvs:%v more:%v count:%v", len(limited.Kvs), limited.More, limited.Count)
	}
}

func TestDelete(t *testing.T) {
	client, app := getClient(t)
	defer app.Stop()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	k := testutils.RandKey(16)
	if _, err := client.Put(ctx, k, "v"); err != nil {
		t.Fatalf("failed to put with err:%v", err)
	}

	resp, err := client.Delete(ctx, k)
	if err != nil {
		t.Fatalf("failed to delete with err:%v", err)
	}
	if resp.Deleted != 1 {
		t.Fatalf("expected 1 deleted got %v", resp.Deleted)
	}

	getResp, err := client.Get(ctx, k)
	if err != nil {
		t.Fatalf("failed to get with err:%v", err)
	}
	if getResp.Count != 0 {
		t.Fatalf("expected key to be deleted")
	}
}
