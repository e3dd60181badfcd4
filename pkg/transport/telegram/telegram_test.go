package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tanuki/pkg/transport"
)

// botServer fakes the Bot API: canned getUpdates batches plus recorded
// sendMessage/editMessageText calls.
type botServer struct {
	t *testing.T

	mu      sync.Mutex
	batches [][]apiUpdate
	sends   []map[string]any
	edits   []map[string]any
	editErr *APIError

	srv *httptest.Server
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	bs := &botServer{t: t}
	bs.srv = httptest.NewServer(http.HandlerFunc(bs.handle))
	t.Cleanup(bs.srv.Close)
	return bs
}

func (bs *botServer) handle(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		bs.t.Errorf("decode params: %v", err)
	}

	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	bs.mu.Lock()
	defer bs.mu.Unlock()

	switch method {
	case "getUpdates":
		var batch []apiUpdate
		if len(bs.batches) > 0 {
			batch = bs.batches[0]
			bs.batches = bs.batches[1:]
		}
		writeResult(w, batch)
	case "sendMessage":
		bs.sends = append(bs.sends, params)
		writeResult(w, message{MessageID: int64(100 + len(bs.sends)), Chat: chat{ID: -100500}})
	case "editMessageText":
		bs.edits = append(bs.edits, params)
		if bs.editErr != nil {
			writeError(w, bs.editErr)
			return
		}
		writeResult(w, true)
	default:
		bs.t.Errorf("unexpected method %s", method)
		writeError(w, &APIError{Code: 404, Description: "method not found"})
	}
}

func writeResult(w http.ResponseWriter, result any) {
	raw, _ := json.Marshal(result)
	_ = json.NewEncoder(w).Encode(apiResponse{OK: true, Result: raw})
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	_ = json.NewEncoder(w).Encode(apiResponse{OK: false, ErrorCode: apiErr.Code, Description: apiErr.Description})
}

func newTestClient(bs *botServer) *Client {
	return New("token", -100500, nil, WithAPIBase(bs.srv.URL), WithHTTPClient(bs.srv.Client()))
}

func TestUpdatesMapsMessages(t *testing.T) {
	bs := newBotServer(t)
	bs.batches = [][]apiUpdate{{
		{UpdateID: 1, Message: &message{
			MessageID:       10,
			MessageThreadID: 17,
			Text:            "run the tests",
			Chat:            chat{ID: -100500},
			ReplyToMessage:  &message{MessageID: 9, Text: "`claude --resume abc123`"},
		}},
		// Wrong chat, must be dropped.
		{UpdateID: 2, Message: &message{MessageID: 11, Text: "ignore me", Chat: chat{ID: 42}}},
		// No text (photo etc), must be dropped.
		{UpdateID: 3, Message: &message{MessageID: 12, Chat: chat{ID: -100500}}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := newTestClient(bs).Updates(ctx)

	select {
	case u := <-updates:
		if u.TopicID != 17 || u.MessageID != 10 || u.Text != "run the tests" {
			t.Errorf("update = %+v", u)
		}
		if u.ReplyToID != 9 || !strings.Contains(u.ReplyToText, "abc123") {
			t.Errorf("reply fields = %d %q", u.ReplyToID, u.ReplyToText)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update received")
	}

	// The dropped updates never arrive.
	select {
	case u := <-updates:
		t.Fatalf("unexpected extra update %+v", u)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUpdatesAdvancesOffset(t *testing.T) {
	bs := newBotServer(t)
	bs.batches = [][]apiUpdate{
		{{UpdateID: 7, Message: &message{MessageID: 1, Text: "a", Chat: chat{ID: -100500}}}},
		{{UpdateID: 8, Message: &message{MessageID: 2, Text: "b", Chat: chat{ID: -100500}}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := newTestClient(bs).Updates(ctx)
	<-updates
	<-updates
	cancel()

	// Offsets must acknowledge each batch so Telegram stops redelivering.
	deadline := time.After(5 * time.Second)
	for {
		bs.mu.Lock()
		drained := len(bs.batches) == 0
		bs.mu.Unlock()
		if drained {
			break
		}
		select {
		case <-deadline:
			t.Fatal("batches never drained")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPostSetsTopicThread(t *testing.T) {
	bs := newBotServer(t)
	c := newTestClient(bs)

	ref, err := c.Post(context.Background(), 17, "hello")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if ref.ChatID != -100500 || ref.MessageID == 0 {
		t.Errorf("ref = %+v", ref)
	}

	if _, err := c.Post(context.Background(), 0, "general"); err != nil {
		t.Fatalf("Post general: %v", err)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if got := bs.sends[0]["message_thread_id"]; got != float64(17) {
		t.Errorf("topic post thread id = %v", got)
	}
	if _, present := bs.sends[1]["message_thread_id"]; present {
		t.Error("general post should omit message_thread_id")
	}
}

func TestEditErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		resp *APIError
		want error
	}{
		{"ok", nil, nil},
		{"not modified", &APIError{Code: 400, Description: "Bad Request: message is not modified"}, nil},
		{"deleted", &APIError{Code: 400, Description: "Bad Request: message to edit not found"}, transport.ErrGone},
		{"uneditable", &APIError{Code: 400, Description: "Bad Request: message can't be edited"}, transport.ErrGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := newBotServer(t)
			bs.editErr = tt.resp
			err := newTestClient(bs).Edit(context.Background(), transport.MessageRef{ChatID: -100500, MessageID: 10}, "new text")
			if !errors.Is(err, tt.want) {
				t.Errorf("Edit err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEditOtherErrorsSurface(t *testing.T) {
	bs := newBotServer(t)
	bs.editErr = &APIError{Code: 429, Description: "Too Many Requests: retry after 5"}
	err := newTestClient(bs).Edit(context.Background(), transport.MessageRef{ChatID: -100500, MessageID: 10}, "text")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 429 {
		t.Errorf("Edit err = %v, want 429 APIError", err)
	}
}

func TestCallReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, &APIError{Code: 401, Description: "Unauthorized"})
	}))
	defer srv.Close()

	c := New("bad", -1, nil, WithAPIBase(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Post(context.Background(), 0, "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != 401 || !strings.Contains(apiErr.Error(), "sendMessage") {
		t.Errorf("apiErr = %v", apiErr)
	}
}
