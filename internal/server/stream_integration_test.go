package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventStreamEmitsVideoChangeEvents(t *testing.T) {
	api := newTestAPI(t)
	server := httptest.NewServer(api.handler)
	t.Cleanup(server.Close)

	token := api.token(t, testCreatorIdentity)

	streamRequest, err := http.NewRequest(http.MethodGet, server.URL+"/events?access_token="+token, http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	streamResp, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}

	streamReader := bufio.NewReader(streamResp.Body)

	payload := `{"id":"video_stream","title":"Encore","description":"","duration_s":12,"file_url":"https://cdn.fanreel.test/content/blob"}`
	uploadReq, err := http.NewRequest(http.MethodPost, server.URL+"/videos", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("failed to construct upload request: %v", err)
	}
	uploadReq.Header.Set("Authorization", "Bearer "+token)
	uploadReq.Header.Set("Content-Type", "application/json")
	uploadResp, err := http.DefaultClient.Do(uploadReq)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	_ = uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected upload status: %d", uploadResp.StatusCode)
	}

	type eventPayload struct {
		VideoIDs []string `json:"videoIds"`
	}

	currentEventType := ""
	deadline := time.After(5 * time.Second)
	type readResult struct {
		line string
		err  error
	}
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := streamReader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for catalog event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			if currentEventType != EventVideoChanged {
				continue
			}
			dataJSON := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var payload eventPayload
			if err := json.Unmarshal([]byte(dataJSON), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if len(payload.VideoIDs) == 0 || payload.VideoIDs[0] != "video_stream" {
				t.Fatalf("unexpected video identifiers: %#v", payload.VideoIDs)
			}
			return
		}
	}
}
