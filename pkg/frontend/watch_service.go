package frontend

import (
	"context"
	"sync"

	"go.etcd.io/etcd/etcdserver/etcdserverpb"
	"go.etcd.io/etcd/mvcc/mvccpb"

	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
	"github.com/khenidak/etcdsession/pkg/types"

	klogv2 "k8s.io/klog/v2"
)

type watcher struct {
	watcherId      int64
	closerFn       func(string)
	key            string
	rangeEnd       string
	watcherContext context.Context
	waitGroup      *sync.WaitGroup
	// grpc streams do not allow concurrent Send
	send func(*etcdserverpb.WatchResponse) error
}

// Note: there might be multiple calls to Watch(...)
// Each stream may carry multiple watchers. When wiring
// context wire the instance of ws that created the stream
// otherwise you will be crossing context streams
func (fe *frontend) Watch(ws etcdserverpb.Watch_WatchServer) error {
	// this map is maintained by each watch server instance
	watchersForThisServer := map[int64]*watcher{}
	// wait group for all watchers out of this server
	watchServerWg := sync.WaitGroup{}
	watchServerLock := sync.Mutex{}
	sendLock := sync.Mutex{}

	send := func(resp *etcdserverpb.WatchResponse) error {
		sendLock.Lock()
		defer sendLock.Unlock()
		return ws.Send(resp)
	}

	// creates a watcher close func that:
	// 1- removes it from list of tracked watcher
	// 2- closes the context for the loop to stop
	// 3- sends the close message
	createWatcher := func(r *etcdserverpb.WatchCreateRequest) *watcher {
		watchServerLock.Lock()
		defer watchServerLock.Unlock()

		fe.watchLock.Lock()
		fe.watchCount = fe.watchCount + 1
		newWatchId := fe.watchCount
		fe.watchLock.Unlock()

		watcherCtx, cancel := context.WithCancel(ws.Context())
		w := &watcher{
			key:            string(r.Key),
			rangeEnd:       string(r.RangeEnd),
			watcherId:      newWatchId,
			watcherContext: watcherCtx,
			waitGroup:      &watchServerWg,
			send:           send,
		}
		w.closerFn = func(reason string) {
			watchServerLock.Lock()
			if _, ok := watchersForThisServer[newWatchId]; !ok {
				// already closed
				watchServerLock.Unlock()
				return
			}
			// remove it from tracked watchers
			delete(watchersForThisServer, newWatchId)
			watchServerLock.Unlock()

			fe.watchLock.Lock()
			delete(fe.watchers, newWatchId)
			fe.watchLock.Unlock()

			// cancel context for watcher loop
			cancel()

			// notify watch server that we are closing this watcher
			closeResponse := &etcdserverpb.WatchResponse{
				Header:       createResponseHeader(fe.be.CurrentRevision()),
				Canceled:     true,
				CancelReason: reason,
				WatchId:      newWatchId,
			}
			// transport errors, context cancelation (racy between
			// server closing and watcher close).. all ignored
			_ = send(closeResponse)
		}

		watchersForThisServer[newWatchId] = w
		fe.watchLock.Lock()
		fe.watchers[newWatchId] = w
		fe.watchLock.Unlock()
		return w
	}

	closeAll := func(reason string) {
		currentWatchers := func() []func(string) {
			watchServerLock.Lock()
			defer watchServerLock.Unlock()
			all := make([]func(string), 0, len(watchersForThisServer))
			for _, watcher := range watchersForThisServer {
				all = append(all, watcher.closerFn)
			}
			return all
		}()

		for _, closer := range currentWatchers {
			closer(reason)
		}
		watchServerWg.Wait() // wait for all to finish
	}

	for {
		msg, err := ws.Recv()
		if err != nil {
			// client went away or stream context is done
			klogv2.V(4).Infof("WATCH stream closing: %v", err)
			closeAll("watch stream is closing")
			return nil
		}

		if createRequest := msg.GetCreateRequest(); createRequest != nil {
			if reason := fe.faults.watchCreateRejection(); len(reason) > 0 {
				rejected := &etcdserverpb.WatchResponse{
					Header:       createResponseHeader(fe.be.CurrentRevision()),
					WatchId:      -1,
					Created:      true,
					Canceled:     true,
					CancelReason: reason,
				}
				if err := send(rejected); err != nil {
					klogv2.V(4).Infof("WATCH failed to send create rejection: %v", err)
				}
				continue
			}

			// resolve "from now on" before the watcher becomes visible
			startRevision := createRequest.StartRevision
			if startRevision == 0 {
				startRevision = fe.be.CurrentRevision() + 1
			}
			w := createWatcher(createRequest)
			watchServerWg.Add(1)
			go fe.watcherLoop(w, startRevision)
			continue
		}

		if cancelRequest := msg.GetCancelRequest(); cancelRequest != nil {
			watchServerLock.Lock()
			w := watchersForThisServer[cancelRequest.WatchId]
			watchServerLock.Unlock()
			if w != nil {
				w.closerFn("close requested by client")
			}
			continue
		}

		klogv2.Infof("WATCH +UNSUPPORTED+ unknown watch request (PROGRESS?):%+v", msg)
	}
}

func (fe *frontend) CancelWatches(reason string) {
	fe.watchLock.Lock()
	all := make([]*watcher, 0, len(fe.watchers))
	for _, w := range fe.watchers {
		all = append(all, w)
	}
	fe.watchLock.Unlock()

	for _, w := range all {
		w.closerFn(reason)
	}
}

func (fe *frontend) Watchers() int {
	fe.watchLock.Lock()
	defer fe.watchLock.Unlock()
	return len(fe.watchers)
}

func (fe *frontend) watcherLoop(w *watcher, nextRevision int64) {
	defer w.waitGroup.Done()

	done := w.watcherContext.Done()

	created := &etcdserverpb.WatchResponse{
		Header:  createResponseHeader(fe.be.CurrentRevision()),
		Created: true,
		WatchId: w.watcherId,
		Events:  []*mvccpb.Event{},
	}

	if err := w.send(created); err != nil {
		klogv2.V(4).Infof("WATCHSENDERR 1st send err %v:%v %v", w.watcherId, w.key, err)
		// don't close watcher here, since the error is from underlying
		// grpc stream and context would be probably already closed
		return
	}

	for {
		// grab the change channel before reading so that a change that
		// lands in between is not missed
		changed := fe.be.Changed()

		records, err := fe.be.ListForWatch(w.key, w.rangeEnd, nextRevision)
		if err != nil {
			klogv2.V(4).Infof("WATCH:[%v] CLOSERR (ListingEvents) :%v", w.key, err)
			if storageerrors.IsCompactedError(err) {
				w.closerFn("required revision has been compacted")
				return
			}
			w.closerFn(err.Error())
			return
		}

		if len(records) > 0 {
			allEvents := make([]*mvccpb.Event, 0, len(records))
			for _, record := range records {
				allEvents = append(allEvents, types.RecordToEvent(record))
			}
			lastRevision := records[len(records)-1].ModRevision
			nextRevision = lastRevision + 1

			response := &etcdserverpb.WatchResponse{
				Header:  createResponseHeader(lastRevision),
				WatchId: w.watcherId,
				Events:  allEvents,
			}

			if err := w.send(response); err != nil {
				klogv2.V(4).Infof("WATCHCLOSEERR:[%v] err (sending response):%v", w.key, err)
				return
			}
		}

		select {
		case <-done:
			klogv2.V(4).Infof("WATCH %v:%v is done", w.watcherId, w.key)
			return
		case <-changed:
		}
	}
}
