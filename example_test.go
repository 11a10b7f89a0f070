package eventsource_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	eventsource "github.com/rayjp2010/fetch-event-source"
)

func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := eventsource.Connect(ctx, "http://localhost:8000/stream", eventsource.Options{
		HeadersFunc: func() (http.Header, error) {
			// Called before every attempt, so a refreshed token is
			// picked up on reconnect.
			h := http.Header{}
			h.Set("Authorization", "Bearer "+currentToken())
			return h, nil
		},
		OnMessage: func(msg eventsource.Message) {
			fmt.Printf("%s: %s\n", msg.Event, msg.Data)
		},
		OnError: func(err error) (time.Duration, error) {
			// Back off harder than the server suggests, or return a
			// non-nil error to stop retrying.
			return 5 * time.Second, nil
		},
	})
	if err != nil {
		fmt.Println(err)
	}
}

func currentToken() string {
	return "example-token"
}
