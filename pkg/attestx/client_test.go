package attestx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gardenledger/fieldsync/pkg/attestx"
)

func TestCheckDuplicate_Exists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/works/check-duplicate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"exists":true,"work":{"id":"work-9","tx_ref":"0xabc"}}`))
	}))
	defer srv.Close()

	c := attestx.NewClient(srv.URL, nil)
	exists, work := c.CheckDuplicate(context.Background(), "deadbeef")
	if !exists {
		t.Fatal("expected duplicate to exist")
	}
	if work == nil || work.ID != "work-9" {
		t.Fatalf("expected remote work record, got %+v", work)
	}
}

func TestCheckDuplicate_FailOpenOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := attestx.NewClient(srv.URL, nil)
	exists, work := c.CheckDuplicate(context.Background(), "deadbeef")
	if exists || work != nil {
		t.Fatal("server error must report not-a-duplicate")
	}
}

func TestCheckDuplicate_FailOpenOnMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := attestx.NewClient(srv.URL, nil)
	if exists, _ := c.CheckDuplicate(context.Background(), "deadbeef"); exists {
		t.Fatal("malformed body must report not-a-duplicate")
	}
}

func TestCheckDuplicate_FailOpenOnUnreachableBackend(t *testing.T) {
	c := attestx.NewClient("http://127.0.0.1:1", nil)
	if exists, _ := c.CheckDuplicate(context.Background(), "deadbeef"); exists {
		t.Fatal("network failure must report not-a-duplicate")
	}
}

func TestCurrentSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/schemas/work/current" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"schemaId":"schema-v3"}`))
	}))
	defer srv.Close()

	c := attestx.NewClient(srv.URL, nil)
	schemaID, ok := c.CurrentSchema(context.Background(), "work")
	if !ok || schemaID != "schema-v3" {
		t.Fatalf("expected schema-v3, got %q ok=%v", schemaID, ok)
	}
}

func TestCurrentSchema_EmptyIDIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := attestx.NewClient(srv.URL, nil)
	if _, ok := c.CurrentSchema(context.Background(), "work"); ok {
		t.Fatal("empty schema id must report unknown")
	}
}

func TestGardenStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gardens/0x123/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"isArchived":true,"isInactive":false}`))
	}))
	defer srv.Close()

	c := attestx.NewClient(srv.URL, nil)
	status, ok := c.GardenStatus(context.Background(), "0x123")
	if !ok {
		t.Fatal("expected a known status")
	}
	if !status.IsArchived || status.IsInactive {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestGardenStatus_FailOpenOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := attestx.NewClient(srv.URL, nil)
	if _, ok := c.GardenStatus(context.Background(), "0x123"); ok {
		t.Fatal("404 must report unknown status")
	}
}
