package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQueueStatusAndHistory(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/queue":
			_, _ = w.Write([]byte(`{"queue_running": [[1, "job-1"]], "queue_pending": []}`))
		case "/history/job-1":
			_, _ = w.Write([]byte(`{"job-1": {"outputs": {}, "status": {"completed": true}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	queue, err := client.QueueStatus(context.Background())
	if err != nil {
		t.Fatalf("QueueStatus returned error: %v", err)
	}
	if len(queue.Running) != 1 || len(queue.Pending) != 0 {
		t.Fatalf("queue = %+v", queue)
	}
	history, err := client.History(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if _, ok := history["job-1"]; !ok {
		t.Fatalf("history = %v", history)
	}
	if _, err := client.History(context.Background(), "missing"); !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}
