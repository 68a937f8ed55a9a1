package logic

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned when an updates body cannot be understood.
var ErrMalformed = errors.New("malformed updates response")

// Update is an inbound item reported by the long-poll endpoint.
type Update struct {
	ID     int64
	From   int64 // sender user id, 0 if unknown
	ChatID int64
	Text   string
}

// updatesResponse mirrors the Bot API getUpdates envelope.
type updatesResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      []struct {
		UpdateID *int64 `json:"update_id"`
		Message  *struct {
			From *struct {
				ID int64 `json:"id"`
			} `json:"from"`
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
			Text string `json:"text"`
		} `json:"message"`
	} `json:"result"`
}

// ParseUpdates extracts the updates carried by a getUpdates body.
// Entries without an update_id are skipped.
func ParseUpdates(body []byte) ([]Update, error) {
	var resp updatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: ok=false: %s", ErrMalformed, resp.Description)
	}

	var updates []Update
	for _, r := range resp.Result {
		if r.UpdateID == nil {
			continue
		}
		u := Update{ID: *r.UpdateID}
		if r.Message != nil {
			u.ChatID = r.Message.Chat.ID
			u.Text = r.Message.Text
			if r.Message.From != nil {
				u.From = r.Message.From.ID
			}
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// PollOutcome summarises what one long-poll response changed.
type PollOutcome struct {
	New      int   // updates not seen before
	Positive bool  // at least one new update came from the watched peer
	Offset   int64 // cursor offset after applying the updates
}

// ApplyUpdates advances the cursor past every update not seen before.
// A peer of 0 matches any sender. Already seen updates change nothing.
func ApplyUpdates(c *Cursor, updates []Update, peer int64) PollOutcome {
	var out PollOutcome
	for _, u := range updates {
		if !c.Advance(u.ID) {
			continue
		}
		out.New++
		if peer == 0 || u.From == peer {
			out.Positive = true
		}
	}
	out.Offset = c.Offset()
	return out
}
