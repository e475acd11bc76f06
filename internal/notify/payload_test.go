package notify

import (
	"errors"
	"testing"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Payload
	}{
		{
			name: "canonical fields",
			raw:  `{"title":"T","body":"B","url":"/x"}`,
			want: Payload{Title: "T", Body: "B", URL: "/x"},
		},
		{
			name: "message alias for body",
			raw:  `{"title":"T","message":"hi there"}`,
			want: Payload{Title: "T", Body: "hi there"},
		},
		{
			name: "link alias for url",
			raw:  `{"title":"T","body":"B","link":"/groups/7"}`,
			want: Payload{Title: "T", Body: "B", URL: "/groups/7"},
		},
		{
			name: "body wins over message",
			raw:  `{"title":"T","body":"B","message":"M"}`,
			want: Payload{Title: "T", Body: "B"},
		},
		{
			name: "defaults applied",
			raw:  `{}`,
			want: Payload{Title: DefaultTitle, Body: DefaultBody},
		},
		{
			name: "full schema",
			raw:  `{"title":"T","body":"B","icon":"/icon.png","tag":"dm-3","url":"/dm/3","requireInteraction":true}`,
			want: Payload{Title: "T", Body: "B", Icon: "/icon.png", Tag: "dm-3", URL: "/dm/3", RequireInteraction: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParsePayload() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePayload() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePayloadMalformed(t *testing.T) {
	got, err := ParsePayload([]byte("hello"))
	if err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
	var perr *PayloadError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PayloadError, got %T", err)
	}
	if got.Title != DefaultTitle {
		t.Errorf("title = %q, want default", got.Title)
	}
	if got.Body != "hello" {
		t.Errorf("body = %q, want raw text", got.Body)
	}
}
