package log

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/sugawarayuuta/sonnet"
)

// TextFormatter renders entries as a single human-readable line:
// "TIMESTAMP LEVEL message key=value key=value".
type TextFormatter struct{}

func (TextFormatter) Format(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	buf.WriteByte(' ')
	buf.WriteString(e.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%v", k, e.Fields[k])
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// JSONFormatter renders entries as one JSON object per line, encoded with
// sugawarayuuta/sonnet for speed.
type JSONFormatter struct{}

type jsonEntry struct {
	Time    string                 `json:"time"`
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

func (JSONFormatter) Format(e *Entry) ([]byte, error) {
	je := jsonEntry{
		Time:    e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Level:   e.Level.String(),
		Message: e.Message,
		Fields:  e.Fields,
	}
	b, err := sonnet.Marshal(je)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
