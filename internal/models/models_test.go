package models

import (
	"encoding/json"
	"testing"
)

func TestServerMessage_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		msg  ServerMessage
		want string
	}{
		{
			name: "Nobody online",
			msg:  ServerMessage{Type: ServerMessageTypeOnlineUsers},
			want: `{"type":"getOnlineUsers","online":[]}`,
		},
		{
			name: "Online users",
			msg:  ServerMessage{Type: ServerMessageTypeOnlineUsers, Online: []string{"a", "b"}},
			want: `{"type":"getOnlineUsers","online":["a","b"]}`,
		},
		{
			name: "Error event",
			msg:  ServerMessage{Type: ServerMessageTypeError, Error: "nope"},
			want: `{"type":"error","error":"nope"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}
