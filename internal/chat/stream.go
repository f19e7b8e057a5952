// internal/chat/stream.go
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// InboundMessage is one text message from the watched room, authored by
// someone other than the bot.
type InboundMessage struct {
	EventID string
	Sender  string
	Text    string
}

// syncResponse covers the subset of /sync this client consumes.
type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]struct {
			Timeline struct {
				Events []timelineEvent `json:"events"`
			} `json:"timeline"`
		} `json:"join"`
	} `json:"rooms"`
}

type timelineEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Sender  string `json:"sender"`
	Content struct {
		MsgType string `json:"msgtype"`
		Body    string `json:"body"`
	} `json:"content"`
}

// inlineFilter restricts /sync to message events in the watched room,
// with state and ephemeral noise suppressed.
func (c *Client) inlineFilter() string {
	filter := map[string]any{
		"room": map[string]any{
			"rooms":    []string{c.roomID},
			"timeline": map[string]any{"types": []string{"m.room.message"}},
			"state":    map[string]any{"types": []string{}},
		},
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}
	data, _ := json.Marshal(filter)
	return string(data)
}

func (c *Client) sync(ctx context.Context, since string, timeout time.Duration) (*syncResponse, error) {
	query := url.Values{
		"filter":  []string{c.inlineFilter()},
		"timeout": []string{strconv.FormatInt(timeout.Milliseconds(), 10)},
	}
	if since != "" {
		query.Set("since", since)
	}
	body, err := c.doRequest(ctx, "GET", "/_matrix/client/v3/sync", query, nil)
	if err != nil {
		return nil, err
	}
	var response syncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("chat: parse sync response: %w", err)
	}
	return &response, nil
}

// Run long-polls /sync and hands each inbound text message to handle,
// until the context is cancelled. The initial zero-timeout sync anchors
// the stream so only messages arriving after startup are processed;
// history is never replayed. Sync failures back off and retry; a
// homeserver hiccup must not kill the loop.
func (c *Client) Run(ctx context.Context, handle func(ctx context.Context, msg InboundMessage)) error {
	anchor, err := c.sync(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("chat: initial sync: %w", err)
	}
	since := anchor.NextBatch

	for {
		response, err := c.sync(ctx, since, 30*time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("sync failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		since = response.NextBatch

		room, ok := response.Rooms.Join[c.roomID]
		if !ok {
			continue
		}
		for _, event := range room.Timeline.Events {
			if event.Type != "m.room.message" || event.Content.MsgType != "m.text" {
				continue
			}
			if event.Sender == c.userID {
				continue
			}
			handle(ctx, InboundMessage{
				EventID: event.EventID,
				Sender:  event.Sender,
				Text:    event.Content.Body,
			})
		}
	}
}
