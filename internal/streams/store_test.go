package streams

import (
	"sync"
	"testing"

	"github.com/smazurov/camfleet/internal/logging"
)

func TestWriteBackDrainsOnClose(t *testing.T) {
	store := newMemStore()
	w := NewWriteBack(store, logging.GetLogger("test"), 8)

	w.Append(Record{Level: "info", Source: "test", Message: "one"})
	w.Append(Record{Level: "info", Source: "test", Message: "two"})
	w.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.records) != 2 || store.records[0].Message != "one" {
		t.Fatalf("records = %+v, want two in queue order", store.records)
	}
}

func TestWriteBackDropsAfterClose(t *testing.T) {
	store := newMemStore()
	w := NewWriteBack(store, logging.GetLogger("test"), 8)
	w.Close()

	// Late writers race with Close; none may panic or land in the store.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Append(Record{Message: "late"})
			w.SaveStatus(SessionStatus{SessionID: "cam1"})
		}()
	}
	wg.Wait()
	w.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.records) != 0 || len(store.statuses) != 0 {
		t.Errorf("writes after Close reached the store: %+v %+v", store.records, store.statuses)
	}
}
