package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	// EventVideoChanged carries the ids of new or updated catalog entries.
	EventVideoChanged = "video-change"
	// EventFollowerChanged carries the identity whose followers changed.
	EventFollowerChanged = "follower-change"

	opWatch           = "watch"
	eventHeartbeat    = "heartbeat"
	maxEventLineBytes = 1 << 20
)

var errStreamClosed = errors.New("event stream closed by server")

// Event is a catalog change announced by the collaborator.
type Event struct {
	Type     string
	VideoIDs []string
	Identity string
}

type eventPayload struct {
	VideoIDs []string `json:"videoIds"`
	Identity string   `json:"identity"`
}

// Watch streams catalog events to handle until ctx ends or the stream breaks.
// It returns nil only when ctx was cancelled.
func (c *Client) Watch(ctx context.Context, handle func(Event)) error {
	path := "/events"
	request, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return &Error{Operation: opWatch, Message: err.Error()}
	}
	request.Header.Set("Accept", "text/event-stream")

	streamClient := *c.httpClient
	streamClient.Timeout = 0
	response, err := streamClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &Error{Operation: opWatch, Message: err.Error()}
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return &Error{Operation: opWatch, Status: response.StatusCode, Message: http.StatusText(response.StatusCode)}
	}

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxEventLineBytes)
	eventType := ""
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventType != "" && eventType != eventHeartbeat {
				c.dispatchEvent(eventType, data.String(), handle)
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return &Error{Operation: opWatch, Message: err.Error()}
	}
	return &Error{Operation: opWatch, Message: errStreamClosed.Error()}
}

func (c *Client) dispatchEvent(eventType, data string, handle func(Event)) {
	var payload eventPayload
	if data != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			c.logger.Warn("malformed catalog event",
				zap.String("event", eventType),
				zap.Error(err))
			return
		}
	}
	handle(Event{Type: eventType, VideoIDs: payload.VideoIDs, Identity: payload.Identity})
}
