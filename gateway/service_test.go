package gateway

import (
	"context"
	"testing"

	"connectrpc.com/connect"

	"github.com/masegraye/appext-go/memhost"
)

func openSession(t *testing.T, svc *Service) *session {
	t.Helper()

	resp, err := svc.open(context.Background(), connect.NewRequest(&OpenRequest{Name: "ib"}))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	sess, err := svc.session(resp.Msg.SessionID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	return sess
}

func handleCount(sess *session) int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.handles)
}

func list(t *testing.T, svc *Service, sess *session) []HandleInfo {
	t.Helper()

	resp, err := svc.listHandles(context.Background(), connect.NewRequest(&SessionRequest{SessionID: sess.id}))
	if err != nil {
		t.Fatalf("listHandles failed: %v", err)
	}
	return resp.Msg.Handles
}

func TestService_ListingReusesHandleIDs(t *testing.T) {
	host := memhost.New(testInfo())
	if err := host.Install(memhost.Payload{Name: "Foo", Version: "1.0"}.Encode()); err != nil {
		t.Fatal(err)
	}
	svc := NewService(host)
	sess := openSession(t, svc)

	first := list(t, svc, sess)
	if len(first) != 1 {
		t.Fatalf("got %d handles, want 1", len(first))
	}
	for i := 0; i < 1000; i++ {
		got := list(t, svc, sess)
		if len(got) != 1 || got[0].ID != first[0].ID {
			t.Fatalf("listing %d returned %+v, want id %s", i, got, first[0].ID)
		}
	}
	if n := handleCount(sess); n != 1 {
		t.Errorf("session holds %d handles after repeated listings, want 1", n)
	}

	ctx := context.Background()
	_, err := svc.delete(ctx, connect.NewRequest(&HandleRequest{SessionID: sess.id, HandleID: first[0].ID}))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n := handleCount(sess); n != 0 {
		t.Errorf("session holds %d handles after delete, want 0", n)
	}
	if _, _, err := svc.handle(sess.id, first[0].ID); connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("deleted handle: expected NotFound, got %v", err)
	}
}

func TestService_CreatedHandleKeepsIDAfterWrite(t *testing.T) {
	svc := NewService(memhost.New(testInfo()))
	sess := openSession(t, svc)
	ctx := context.Background()

	created, err := svc.createHandle(ctx, connect.NewRequest(&SessionRequest{SessionID: sess.id}))
	if err != nil {
		t.Fatalf("createHandle failed: %v", err)
	}
	id := created.Msg.ID
	data := memhost.Payload{Name: "Bar", Version: "2.0"}.Encode()
	if _, err := svc.write(ctx, connect.NewRequest(&WriteRequest{SessionID: sess.id, HandleID: id, Data: data})); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := list(t, svc, sess)
	if len(got) != 1 || got[0].ID != id || got[0].Name != "Bar" {
		t.Fatalf("listing = %+v, want Bar under id %s", got, id)
	}
	if n := handleCount(sess); n != 1 {
		t.Errorf("session holds %d handles, want 1", n)
	}
}

func TestService_PendingHandlesAreBounded(t *testing.T) {
	svc := NewService(memhost.New(testInfo()))
	sess := openSession(t, svc)

	var ids []string
	for i := 0; i < maxPendingHandles+10; i++ {
		resp, err := svc.createHandle(context.Background(), connect.NewRequest(&SessionRequest{SessionID: sess.id}))
		if err != nil {
			t.Fatalf("createHandle failed: %v", err)
		}
		ids = append(ids, resp.Msg.ID)
	}

	if n := handleCount(sess); n != maxPendingHandles {
		t.Errorf("session holds %d handles, want %d", n, maxPendingHandles)
	}
	if _, _, err := svc.handle(sess.id, ids[0]); connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("oldest pending handle: expected NotFound, got %v", err)
	}
	if _, _, err := svc.handle(sess.id, ids[len(ids)-1]); err != nil {
		t.Errorf("newest pending handle should resolve: %v", err)
	}
}
