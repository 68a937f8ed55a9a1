// Package telegram is the network collaborator: a blocking Bot API client
// with one resettable connection handle per instance.
package telegram

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Request describes one Bot API call.
type Request struct {
	Method  string        // Bot API method, e.g. "sendMessage"
	Params  url.Values    // query parameters
	Timeout time.Duration // client-side bound for the whole exchange; 0 = none
}

// Performer executes a request and returns the raw response body.
// Implementations block until the exchange completes or the timeout expires.
type Performer interface {
	Perform(ctx context.Context, req Request) ([]byte, error)

	// Reset drops the current connection and prepares a fresh one.
	Reset()
}

// SendMessage builds a sendMessage request posting text to chatID.
func SendMessage(chatID int64, text string, timeout time.Duration) Request {
	return Request{
		Method: "sendMessage",
		Params: url.Values{
			"chat_id": {strconv.FormatInt(chatID, 10)},
			"text":    {text},
		},
		Timeout: timeout,
	}
}

// GetUpdates builds a long-poll request for updates from offset on. The
// server holds the request open for up to wait.
func GetUpdates(offset int64, wait, timeout time.Duration) Request {
	return Request{
		Method: "getUpdates",
		Params: url.Values{
			"offset":  {strconv.FormatInt(offset, 10)},
			"timeout": {strconv.Itoa(int(wait / time.Second))},
		},
		Timeout: timeout,
	}
}

// GetMe builds the identity probe used to check connectivity.
func GetMe(timeout time.Duration) Request {
	return Request{Method: "getMe", Timeout: timeout}
}
