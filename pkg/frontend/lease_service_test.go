package frontend_test

import (
	"context"
	"testing"
	"time"

	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/etcdserver/api/v3rpc/rpctypes"

	testutils "github.com/khenidak/etcdsession/test/utils"
)

func TestLeaseGrantRevoke(t *testing.T) {
	client, app := getClient(t)
	defer app.Stop()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.Grant(ctx, 10)
	if err != nil {
		t.Fatalf("failed to grant lease with err :%v", err)
	}
	t.Logf("granted a lease for 10s got ID:%v", res.ID)

	k := testutils.RandKey(16)
	if _, err := client.Put(ctx, k, "v", clientv3.WithLease(res.ID)); err != nil {
		t.Fatalf("failed to put with lease with err:%v", err)
	}

	ttl, err := client.TimeToLive(ctx, res.ID, clientv3.WithAttachedKeys())
	if err != nil {
		t.Fatalf("failed to get lease ttl with err:%v", err)
	}
	if ttl.GrantedTTL != 10 || len(ttl.Keys) != 1 || string(ttl.Keys[0]) != k {
		t.Fatalf("unexpected ttl response %+v", ttl)
	}

	leases, err := client.Leases(ctx)
	if err != nil {
		t.Fatalf("failed to list leases with err:%v", err)
	}
	if len(leases.Leases) != 1 || leases.Leases[0].ID != res.ID {
		t.Fatalf("expected to find lease:%v in %+v", res.ID, leases.Leases)
	}

	if _, err := client.Revoke(ctx, res.ID); err != nil {
		t.Fatalf("failed to revoke a lease with err:%v", err)
	}

	getResp, err := client.Get(ctx, k)
	if err != nil {
		t.Fatalf("failed to get with err:%v", err)
	}
	if getResp.Count != 0 {
		t.Fatalf("expected leased key to be removed with its lease")
	}

	if _, err := client.Revoke(ctx, res.ID); err != rpctypes.ErrLeaseNotFound {
		t.Fatalf("expected lease not found on second revoke got %v", err)
	}
}

func TestLeaseKeepAliveOnce(t *testing.T) {
	client, app := getClient(t)
	defer app.Stop()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.Grant(ctx, 5)
	if err != nil {
		t.Fatalf("failed to grant lease with err :%v", err)
	}

	ka, err := client.KeepAliveOnce(ctx, res.ID)
	if err != nil {
		t.Fatalf("failed to keep alive with err:%v", err)
	}
	if ka.TTL != 5 {
		t.Fatalf("expected ttl 5 got %v", ka.TTL)
	}

	if _, err := client.Revoke(ctx, res.ID); err != nil {
		t.Fatalf("failed to revoke with err:%v", err)
	}

	if _, err := client.KeepAliveOnce(ctx, res.ID); err != rpctypes.ErrLeaseNotFound {
		t.Fatalf("expected lease not found after revoke got %v", err)
	}
}
