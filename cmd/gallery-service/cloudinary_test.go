package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func testClient(apiBase, deliveryBase string) *cloudinaryClient {
	c := newCloudinaryClient(config{
		cloudName: "demo",
		apiKey:    "key123",
		apiSecret: "shhh",
		folder:    "charliegram",
	})
	if apiBase != "" {
		c.apiBase = apiBase
	}
	if deliveryBase != "" {
		c.deliveryBase = deliveryBase
	}
	return c
}

func TestSignSortsParams(t *testing.T) {
	c := testClient("", "")
	got := c.sign(map[string]string{
		"timestamp": "1700000000",
		"public_id": "charliegram/cat",
	})
	// Digest of "public_id=charliegram/cat&timestamp=1700000000shhh";
	// key order in the input map must not matter.
	want := c.sign(map[string]string{
		"public_id": "charliegram/cat",
		"timestamp": "1700000000",
	})
	if got != want {
		t.Fatalf("signature depends on map order: %s vs %s", got, want)
	}
	if len(got) != 40 {
		t.Fatalf("signature %q is not a sha1 hex digest", got)
	}
}

func TestRawAssetToRecord(t *testing.T) {
	a := rawAsset{
		PublicID:  "charliegram/dog",
		Width:     800,
		Height:    600,
		Format:    "",
		Tags:      []string{" Beach ", "", "SUNSET"},
		CreatedAt: "2025-06-01T10:00:00Z",
	}
	got := a.toRecord()
	want := imageRecord{
		ID:        "charliegram/dog",
		Width:     800,
		Height:    600,
		Format:    "jpg",
		Tags:      []string{"beach", "sunset"},
		CreatedAt: "2025-06-01T10:00:00Z",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSearchSortedRequestShape(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/demo/resources/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "key123" || pass != "shhh" {
			t.Error("missing or wrong basic auth")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"resources": []rawAsset{
				{PublicID: "charliegram/a", Format: "png"},
			},
			"next_cursor": "tok-next",
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, "")
	page, err := c.SearchSorted(context.Background(), "folder:charliegram/*", "desc", pageSize, "tok-prev")
	if err != nil {
		t.Fatalf("SearchSorted: %v", err)
	}
	if gotBody["expression"] != "folder:charliegram/*" {
		t.Errorf("expression = %v", gotBody["expression"])
	}
	if gotBody["next_cursor"] != "tok-prev" {
		t.Errorf("cursor not forwarded: %v", gotBody["next_cursor"])
	}
	if page.nextCursor != "tok-next" {
		t.Errorf("nextCursor = %q", page.nextCursor)
	}
	if len(page.records) != 1 || page.records[0].ID != "charliegram/a" || page.records[0].Format != "png" {
		t.Errorf("records = %+v", page.records)
	}
}

func TestFetchPreviewTransformPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/demo/image/upload/f_jpg,e_blur:1000,q_50/charliegram/cat.jpg" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	c := testClient("", srv.URL)
	body, err := c.FetchPreview(context.Background(), "charliegram/cat", "jpg")
	if err != nil {
		t.Fatalf("FetchPreview: %v", err)
	}
	if string(body) != "jpegbytes" {
		t.Fatalf("body = %q", body)
	}
}

func TestFetchPreviewRejectsErrorsAndEmptyBody(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := testClient("", srv.URL)
	if _, err := c.FetchPreview(context.Background(), "charliegram/missing", "jpg"); err == nil {
		t.Fatal("404 preview accepted")
	}

	status = http.StatusOK
	if _, err := c.FetchPreview(context.Background(), "charliegram/empty", "jpg"); err == nil {
		t.Fatal("empty preview body accepted")
	}
}

func TestDestroyChecksResult(t *testing.T) {
	result := "ok"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/demo/image/destroy" {
			t.Errorf("path = %s", r.URL.Path)
		}
		r.ParseForm()
		if r.PostForm.Get("signature") == "" || r.PostForm.Get("api_key") != "key123" {
			t.Error("destroy request not signed")
		}
		json.NewEncoder(w).Encode(map[string]string{"result": result})
	}))
	defer srv.Close()

	c := testClient(srv.URL, "")
	if err := c.Destroy(context.Background(), "charliegram/cat"); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	result = "not found"
	if err := c.Destroy(context.Background(), "charliegram/gone"); err == nil {
		t.Fatal("non-ok destroy result accepted")
	}
}
