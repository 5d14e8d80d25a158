package llmsession

import "encoding/json"

// EventType discriminates the events the pipeline consumes. This is the
// complete set — spec-mandated, not open for ad hoc additions.
type EventType string

const (
	EventTextDelta       EventType = "text_delta"
	EventTextDone        EventType = "text_done"
	EventResponseCreated EventType = "response_created"
	EventResponseDone    EventType = "response_done"
	EventFunctionCall    EventType = "function_call"
	EventItemCreated     EventType = "item_created"
	EventError           EventType = "error"
	EventClosed          EventType = "closed"
)

// Event is the single typed event delivered to the pipeline, replacing the
// dynamic event-emitter pattern of the original source with one channel of
// one tagged-union type.
type Event struct {
	Type EventType

	Token      string          // text_delta
	FullText   string          // text_done
	ResponseID string          // response_created / response_done / cancel target
	Response   json.RawMessage // response_done

	CallID string          // function_call
	Name   string          // function_call
	Args   json.RawMessage // function_call

	ItemID string // item_created
	Role   string // item_created

	Err error // error
}

// wireEvent is the subset of the remote's JSON message shapes this client
// understands; everything else is ignored, matching spec.md §7's "protocol
// errors: the specific message is dropped" policy.
type wireEvent struct {
	Type string `json:"type"`

	Delta string `json:"delta"`
	Text  string `json:"text"`

	Response struct {
		ID string `json:"id"`
	} `json:"response"`

	CallID string `json:"call_id"`
	Name   string `json:"name"`

	Item struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"item"`

	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) dispatch(raw []byte) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		// malformed JSON: log and drop the message, per spec.md §7.
		return
	}

	switch w.Type {
	case "response.output_text.delta":
		c.emit(Event{Type: EventTextDelta, Token: w.Delta})
	case "response.output_text.done":
		c.emit(Event{Type: EventTextDone, FullText: w.Text})
	case "response.created":
		c.setActiveResponse(w.Response.ID)
		c.emit(Event{Type: EventResponseCreated, ResponseID: w.Response.ID})
	case "response.done":
		c.clearActiveResponse(w.Response.ID)
		c.emit(Event{Type: EventResponseDone, ResponseID: w.Response.ID, Response: raw})
	case "response.function_call_arguments.delta":
		c.toolCalls.appendDelta(w.CallID, w.Delta)
	case "response.function_call_arguments.start":
		c.toolCalls.start(w.CallID, w.Name)
	case "response.function_call_arguments.done":
		name, args, ok := c.toolCalls.done(w.CallID)
		if !ok {
			return
		}
		c.emit(Event{Type: EventFunctionCall, CallID: w.CallID, Name: name, Args: json.RawMessage(args)})
	case "conversation.item.created":
		c.emit(Event{Type: EventItemCreated, ItemID: w.Item.ID, Role: w.Item.Role})
	case "error":
		c.emit(Event{Type: EventError, Err: errString(w.Error.Message)})
	}
}

type protocolError string

func (e protocolError) Error() string { return string(e) }

func errString(s string) error {
	if s == "" {
		s = "llm session error"
	}
	return protocolError(s)
}
