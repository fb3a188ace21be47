package backend

import (
	"fmt"
	"testing"

	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
)

func TestRangePrefix(t *testing.T) {
	be := NewBackend()
	base := "/" + randStringRunes(8)

	for _, k := range []string{"p-a", "p-b", "p-b2", "p-c-extra"} {
		if _, err := be.Put(fmt.Sprintf("%s/%s", base, k), []byte(k), 0); err != nil {
			t.Fatalf("failed to put key with err:%v", err)
		}
	}

	prefix := base + "/p-b"
	res, err := be.Range(prefix, prefix+"\xff", 0)
	if err != nil {
		t.Fatalf("failed to range with err:%v", err)
	}

	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records got %v", len(res.Records))
	}
	if res.Records[0].Key != base+"/p-b" || res.Records[1].Key != base+"/p-b2" {
		t.Fatalf("unexpected keys %v %v", res.Records[0].Key, res.Records[1].Key)
	}
	if res.More {
		t.Fatalf("did not expect more")
	}
}

func TestRangeLimit(t *testing.T) {
	be := NewBackend()
	base := "/" + randStringRunes(8) + "/"

	for i := 0; i < 10; i++ {
		if _, err := be.Put(fmt.Sprintf("%s%02d", base, i), []byte("v"), 0); err != nil {
			t.Fatalf("failed to put key with err:%v", err)
		}
	}

	res, err := be.Range(base, PrefixEnd(base), 4)
	if err != nil {
		t.Fatalf("failed to range with err:%v", err)
	}
	if len(res.Records) != 4 || !res.More || res.Count != 10 {
		t.Fatalf("expected 4 records, more and count 10. got %v %v %v", len(res.Records), res.More, res.Count)
	}

	// all keys
	res, err = be.Range("\x00", "\x00", 0)
	if err != nil {
		t.Fatalf("failed to range all with err:%v", err)
	}
	if len(res.Records) != 10 {
		t.Fatalf("expected 10 records got %v", len(res.Records))
	}
}

func TestListForWatch(t *testing.T) {
	be := NewBackend()
	base := "/" + randStringRunes(8) + "/"

	start := be.CurrentRevision() + 1
	if _, err := be.Put(base+"a", []byte("1"), 0); err != nil {
		t.Fatalf("failed to put key with err:%v", err)
	}
	if _, err := be.Put("/elsewhere", []byte("1"), 0); err != nil {
		t.Fatalf("failed to put key with err:%v", err)
	}
	if _, _, err := be.DeleteRange(base+"a", ""); err != nil {
		t.Fatalf("failed to delete key with err:%v", err)
	}

	events, err := be.ListForWatch(base, PrefixEnd(base), start)
	if err != nil {
		t.Fatalf("failed to list events with err:%v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events got %v", len(events))
	}
	if events[0].Deleted || !events[1].Deleted {
		t.Fatalf("expected put then delete got %+v %+v", events[0], events[1])
	}
}

func TestListForWatchCompacted(t *testing.T) {
	be := NewBackend(WithMaxEventCount(3))

	for i := 0; i < 5; i++ {
		if _, err := be.Put(fmt.Sprintf("/k%d", i), []byte("v"), 0); err != nil {
			t.Fatalf("failed to put key with err:%v", err)
		}
	}

	_, err := be.ListForWatch("/", PrefixEnd("/"), 1)
	if !storageerrors.IsCompactedError(err) {
		t.Fatalf("expected compacted error got %v", err)
	}

	events, err := be.ListForWatch("/", PrefixEnd("/"), be.CurrentRevision()-2)
	if err != nil {
		t.Fatalf("unexpected err:%v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events got %v", len(events))
	}
}

func TestPrefixEnd(t *testing.T) {
	testCases := []struct {
		name     string
		prefix   string
		expected string
	}{
		{name: "simple", prefix: "/a/", expected: "/a0"},
		{name: "trailing-ff", prefix: "a\xff", expected: "b"},
		{name: "all-ff", prefix: "\xff\xff", expected: "\x00"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := PrefixEnd(testCase.prefix); got != testCase.expected {
				t.Fatalf("expected %q got %q", testCase.expected, got)
			}
		})
	}
}
