package session

import (
	"context"
	"fmt"

	klogv2 "k8s.io/klog/v2"

	"go.etcd.io/etcd/etcdserver/etcdserverpb"

	"github.com/khenidak/etcdsession/pkg/types"
)

// WatchHandler receives the events of one server message, in server
// order. Returning true stops the watch.
type WatchHandler func(events []types.Event) (stop bool)

// Watch streams changes to keys in [prefix, prefix+0xFF) made after the
// watch is created. It blocks until handler asks to stop (nil), ctx is
// done (ctx.Err()) or the stream fails (StreamTerminated, the session is
// disconnected). Nothing is resumed, a new Watch starts from scratch.
func (s *Session) Watch(ctx context.Context, prefix string, handler WatchHandler) error {
	stubs, leaseID, err := s.connectedStubs("Watch")
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := stubs.watch.Watch(watchCtx)
	if err != nil {
		return s.streamFailed(ctx, "Watch", leaseID, err)
	}

	create := &etcdserverpb.WatchRequest{
		RequestUnion: &etcdserverpb.WatchRequest_CreateRequest{
			CreateRequest: &etcdserverpb.WatchCreateRequest{
				Key:      []byte(prefix),
				RangeEnd: []byte(prefixRangeEnd(prefix)),
			},
		},
	}
	if err := stream.Send(create); err != nil {
		return s.streamFailed(ctx, "Watch", leaseID, err)
	}

	ack, err := stream.Recv()
	if err != nil {
		return s.streamFailed(ctx, "Watch", leaseID, err)
	}
	if !ack.Created || ack.Canceled {
		return s.streamFailed(ctx, "Watch", leaseID, fmt.Errorf("watch was not created: %v", ack.CancelReason))
	}
	klogv2.V(4).Infof("session: watch %v created on %v", ack.WatchId, prefix)

	for {
		resp, err := stream.Recv()
		if err != nil {
			return s.streamFailed(ctx, "Watch", leaseID, err)
		}

		if resp.Canceled {
			return s.streamFailed(ctx, "Watch", leaseID, fmt.Errorf("canceled by server: %v", resp.CancelReason))
		}

		if len(resp.Events) == 0 {
			continue
		}

		events := types.EventsFromPB(resp.Events)
		watchEventsTotal.Add(float64(len(events)))
		if handler(events) {
			return nil
		}
	}
}
