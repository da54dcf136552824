package web

import (
	"sync"
	"testing"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

func TestViewStoreGet(t *testing.T) {
	store := newViewStore(10, 0, log.DefaultLogger)

	a := store.get("a")
	if a == nil {
		t.Fatal("get() returned nil")
	}
	if store.get("a") != a {
		t.Error("get() should return the same view for the same id")
	}
	if store.get("b") == a {
		t.Error("different ids share a view")
	}
	if got := store.len(); got != 2 {
		t.Errorf("len() = %d, want 2", got)
	}
}

func TestViewStoreEvictsOldest(t *testing.T) {
	store := newViewStore(2, 0, log.DefaultLogger)

	a := store.get("a")
	store.get("b")
	store.get("c")

	if got := store.len(); got != 2 {
		t.Fatalf("len() = %d, want 2", got)
	}
	if store.get("a") == a {
		t.Error("oldest view should have been evicted")
	}
}

func TestViewStoreConcurrentGet(t *testing.T) {
	store := newViewStore(0, 0, log.DefaultLogger)
	var wg sync.WaitGroup

	views := make([]*view, 50)
	wg.Add(len(views))
	for i := range views {
		go func(i int) {
			defer wg.Done()
			views[i] = store.get("shared")
		}(i)
	}
	wg.Wait()

	for i, v := range views {
		if v != views[0] {
			t.Fatalf("goroutine %d got a different view", i)
		}
	}
}

func TestViewUploadLifecycle(t *testing.T) {
	v := newView("id")

	v.selectFile(&selection{Name: "a.csv", Size: 3}, "")
	v.setUploadStatus(msgUploading, true)

	state := v.uploadState()
	if !state.uploading || state.status != msgUploading {
		t.Errorf("state = %+v, want uploading", state)
	}

	v.finishUpload("Error: Upload failed. Please try again.", false)
	if v.currentSelection() == nil {
		t.Error("selection should survive a failed upload")
	}

	v.finishUpload("Upload successful! Dataset ID: x", true)
	if v.currentSelection() != nil {
		t.Error("selection should be cleared after a successful upload")
	}
	if v.uploadState().uploading {
		t.Error("view still uploading")
	}
}
