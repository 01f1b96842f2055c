package loki

// pushRequest is the JSON body of a Loki push.
type pushRequest struct {
	Streams []stream `json:"streams"`
}

// stream is a labelled set of log lines.
type stream struct {
	Stream map[string]string `json:"stream"`
	Values []streamValue     `json:"values"`
}

// streamValue is a [unix nanoseconds, line] pair.
type streamValue [2]string

// logLine is the JSON shape of a single shipped log line.
type logLine struct {
	Level   string         `json:"level"`
	Time    int64          `json:"ts"`
	Message string         `json:"msg"`
	Logger  string         `json:"logger,omitempty"`
	Caller  string         `json:"caller,omitempty"`
	Stack   string         `json:"stacktrace,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}
