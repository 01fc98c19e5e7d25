package control

// The control-plane protocol: a client writes one JSON command object per
// connection and receives one JSON response, except for logs_stream, which
// keeps the connection open and pushes newline-delimited frames.

// Command names accepted on the wire.
const (
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdRestart    = "restart"
	CmdEnable     = "enable"
	CmdDisable    = "disable"
	CmdStatus     = "status"
	CmdLogsStream = "logs_stream"
	CmdLogsStop   = "logs_stop"
)

// Frame command markers on pushed stream frames.
const (
	FrameLogsData    = "logs_data"
	FrameStreamEnded = "logs_stream_ended"
)

// Kind is the closed set of control commands. String-to-kind decoding happens
// once at the protocol boundary; handlers dispatch on the variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindStart
	KindStop
	KindRestart
	KindEnable
	KindDisable
	KindStatus
	KindLogsStream
	KindLogsStop
)

var kinds = map[string]Kind{
	CmdStart:      KindStart,
	CmdStop:       KindStop,
	CmdRestart:    KindRestart,
	CmdEnable:     KindEnable,
	CmdDisable:    KindDisable,
	CmdStatus:     KindStatus,
	CmdLogsStream: KindLogsStream,
	CmdLogsStop:   KindLogsStop,
}

// Request is the wire form of one command.
type Request struct {
	Command  string `json:"command"`
	Service  string `json:"service,omitempty"`
	StreamID string `json:"stream_id,omitempty"`
	// Path selects a file-backed stream instead of the journal for
	// logs_stream.
	Path string `json:"path,omitempty"`
}

// Kind resolves the request's command name. KindUnknown means the name is not
// in the command table.
func (r Request) Kind() Kind {
	return kinds[r.Command]
}

// Response is the wire form of a command response or a pushed stream frame.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Command   string `json:"command,omitempty"`
	Data      any    `json:"data,omitempty"`
	Output    string `json:"output,omitempty"`
	StreamID  string `json:"stream_id,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Fail builds a failure response.
func Fail(message string) Response {
	return Response{Success: false, Message: message}
}

// OK builds a success response.
func OK(message string) Response {
	return Response{Success: true, Message: message}
}
