package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

func TestContentStorePutCopiesDataAndReportsStatus(t *testing.T) {
	t.Parallel()

	store := NewContentStore("https://cdn.example")
	ctx := context.Background()
	payload := []byte("content")

	status, err := store.Put(ctx, "clonedwebs/promo/index.html", "text/html", payload)
	if err != nil || status != cloner.PutCreated {
		t.Fatalf("Put() = %q, %v; want created", status, err)
	}
	payload[0] = 'C'
	obj, err := store.Get(ctx, "clonedwebs/promo/index.html")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Data) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", obj.Data)
	}

	status, _ = store.Put(ctx, "clonedwebs/promo/index.html", "text/html", []byte("content"))
	if status != cloner.PutUnchanged {
		t.Fatalf("expected unchanged, got %q", status)
	}
	status, _ = store.Put(ctx, "clonedwebs/promo/index.html", "text/html", []byte("v2"))
	if status != cloner.PutUpdated {
		t.Fatalf("expected updated, got %q", status)
	}
	if got := store.PublicURL("clonedwebs/promo/index.html"); got != "https://cdn.example/clonedwebs/promo/index.html" {
		t.Fatalf("unexpected public url %s", got)
	}
}

func TestContentStoreListDirectChildren(t *testing.T) {
	t.Parallel()

	store := NewContentStore("")
	ctx := context.Background()
	for _, p := range []string{"clonedwebs/a/index.html", "clonedwebs/a/site.css", "clonedwebs/b/index.html", "clonedwebs/readme.txt"} {
		if _, err := store.Put(ctx, p, "text/plain", []byte(p)); err != nil {
			t.Fatalf("Put(%s) error = %v", p, err)
		}
	}

	entries, err := store.List(ctx, "clonedwebs/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	if !entries[0].IsDir || entries[0].Name != "a" || !entries[1].IsDir || entries[2].IsDir {
		t.Fatalf("unexpected listing %+v", entries)
	}

	files, _ := store.List(ctx, "clonedwebs/a")
	if len(files) != 2 || files[1].Name != "site.css" {
		t.Fatalf("unexpected files %+v", files)
	}
}

func TestContentStoreContainerLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMissingContentStore("")
	ctx := context.Background()
	if err := store.EnsureContainer(ctx, false); !errors.Is(err, cloner.ErrContainerNotFound) {
		t.Fatalf("expected container not found, got %v", err)
	}
	if _, err := store.Put(ctx, "x", "text/plain", nil); !errors.Is(err, cloner.ErrContainerNotFound) {
		t.Fatalf("expected put to fail without container, got %v", err)
	}
	if err := store.EnsureContainer(ctx, true); err != nil {
		t.Fatalf("EnsureContainer(create) error = %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, cloner.ErrObjectNotFound) {
		t.Fatalf("expected object not found, got %v", err)
	}
}
