package bridge

// Wire contract between the gateway and the viewer shim. The shim is a small
// script injected next to the embedded PDF viewer; it opens a websocket to
// the gateway and relays these messages. The message set is fixed and carries
// no correlation identifiers, which is why the host allows at most one
// outstanding extraction per viewer.
const (
	// Host -> viewer

	// MsgInitSelectionMonitoring tells the shim to start observing text
	// selection. The shim debounces selection changes by 300ms and reports
	// only non-empty selections. No response is sent.
	MsgInitSelectionMonitoring = "INIT_TEXT_SELECTION_MONITORING"

	// MsgExtractFullText asks the shim for the concatenated text of the
	// whole document. Answered by exactly one of MsgFullTextResponse or
	// MsgFullTextError, on a best-effort basis.
	MsgExtractFullText = "EXTRACT_FULL_TEXT"

	// Viewer -> host

	// MsgTextSelection reports the currently selected text.
	MsgTextSelection = "TEXT_SELECTION"

	// MsgFullTextResponse carries the extracted document text.
	MsgFullTextResponse = "FULL_TEXT_RESPONSE"

	// MsgFullTextError reports that extraction failed inside the viewer.
	MsgFullTextError = "FULL_TEXT_ERROR"
)

// Envelope is the single message shape used in both directions. Fields other
// than Type are populated depending on the message.
type Envelope struct {
	Type string `json:"type"`
	// Text carries the selection for TEXT_SELECTION and the document text
	// for FULL_TEXT_RESPONSE.
	Text string `json:"text,omitempty"`
	// Error carries the failure description for FULL_TEXT_ERROR.
	Error string `json:"error,omitempty"`
	// Timestamp is set by the shim on TEXT_SELECTION, milliseconds since
	// the Unix epoch.
	Timestamp int64 `json:"timestamp,omitempty"`
}
