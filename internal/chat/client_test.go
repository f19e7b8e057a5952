// internal/chat/client_test.go
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoom = "!inventory:example.org"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		HomeserverURL:  server.URL,
		AccessToken:    "syt_test_token",
		UserID:         "@gearledger:example.org",
		RoomID:         testRoom,
		HTTPClient:     server.Client(),
		SendsPerSecond: 1000,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{AccessToken: "x", RoomID: "y"})
	assert.ErrorContains(t, err, "HomeserverURL")

	_, err = NewClient(Config{HomeserverURL: "https://hs", RoomID: "y"})
	assert.ErrorContains(t, err, "AccessToken")

	_, err = NewClient(Config{HomeserverURL: "https://hs", AccessToken: "x"})
	assert.ErrorContains(t, err, "RoomID")
}

func TestReactSendsAnnotation(t *testing.T) {
	var captured map[string]any
	var path, auth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"event_id":"$ack"}`))
	})

	require.NoError(t, client.React(context.Background(), "$evt1", "✅"))

	assert.Equal(t, "Bearer syt_test_token", auth)
	assert.True(t, strings.HasPrefix(path,
		"/_matrix/client/v3/rooms/"+url.PathEscape(testRoom)+"/send/m.reaction/"), path)

	relates := captured["m.relates_to"].(map[string]any)
	assert.Equal(t, "m.annotation", relates["rel_type"])
	assert.Equal(t, "$evt1", relates["event_id"])
	assert.Equal(t, "✅", relates["key"])
}

func TestReplyRelatesToEvent(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"event_id":"$ack"}`))
	})

	require.NoError(t, client.Reply(context.Background(), "$evt1", "hello"))

	assert.Equal(t, "m.text", captured["msgtype"])
	assert.Equal(t, "hello", captured["body"])
	relates := captured["m.relates_to"].(map[string]any)
	reply := relates["m.in_reply_to"].(map[string]any)
	assert.Equal(t, "$evt1", reply["event_id"])
}

func TestSendSurfacesMatrixError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errcode":"M_FORBIDDEN","error":"not in room"}`))
	})

	err := client.Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "M_FORBIDDEN")
	assert.Contains(t, err.Error(), "403")
}

func TestRunFiltersAndDelivers(t *testing.T) {
	syncs := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_matrix/client/v3/sync", r.URL.Path)
		syncs++
		switch syncs {
		case 1:
			// Anchor sync: nothing delivered from history.
			w.Write([]byte(`{"next_batch":"s1"}`))
		case 2:
			assert.Equal(t, "s1", r.URL.Query().Get("since"))
			resp := map[string]any{
				"next_batch": "s2",
				"rooms": map[string]any{
					"join": map[string]any{
						testRoom: map[string]any{
							"timeline": map[string]any{
								"events": []map[string]any{
									{"type": "m.room.message", "event_id": "$own", "sender": "@gearledger:example.org",
										"content": map[string]any{"msgtype": "m.text", "body": "self"}},
									{"type": "m.room.message", "event_id": "$img", "sender": "@alice:example.org",
										"content": map[string]any{"msgtype": "m.image", "body": "photo"}},
									{"type": "m.room.message", "event_id": "$cmd", "sender": "@alice:example.org",
										"content": map[string]any{"msgtype": "m.text", "body": "return | serial: S1 | by: Alice"}},
								},
							},
						},
					},
				},
			}
			json.NewEncoder(w).Encode(resp)
		default:
			// Park until the test cancels.
			<-r.Context().Done()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	var got []InboundMessage
	go client.Run(ctx, func(_ context.Context, msg InboundMessage) {
		got = append(got, msg)
		cancel()
	})
	<-ctx.Done()

	require.Len(t, got, 1)
	assert.Equal(t, "$cmd", got[0].EventID)
	assert.Equal(t, "@alice:example.org", got[0].Sender)
	assert.Equal(t, "return | serial: S1 | by: Alice", got[0].Text)
}

func TestPermalink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	link := client.Permalink("$evt1")
	assert.Equal(t, "https://matrix.to/#/"+url.PathEscape(testRoom)+"/"+url.PathEscape("$evt1"), link)
}
