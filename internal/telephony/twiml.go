package telephony

import (
	"html"
	"text/template"
	"strings"
)

// streamTwiML connects the call to our audio WebSocket. Four fixed, small
// XML shapes live in this package and in internal/pipeline/transfer.go —
// not enough surface to justify a third-party templating library.
var streamTwiML = template.Must(template.New("stream").Parse(
	`<?xml version="1.0" encoding="UTF-8"?><Response><Connect><Stream url="{{.}}"/></Connect></Response>`,
))

const errorTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Say>Sorry, this call cannot be completed right now.</Say><Hangup/></Response>`

// StreamTwiML renders the TwiML document that opens the bidirectional audio
// stream back to wsURL.
func StreamTwiML(wsURL string) string {
	var b strings.Builder
	// template execution against a fixed single-field template cannot fail
	_ = streamTwiML.Execute(&b, html.EscapeString(wsURL))
	return b.String()
}

// ErrorTwiML is returned when the incoming-call webhook cannot resolve an
// assistant for the call, so no audio session is ever started.
func ErrorTwiML() string {
	return errorTwiML
}
