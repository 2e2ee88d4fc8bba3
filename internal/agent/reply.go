package agent

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ParseReply reads the first JSON object in text as a Reply. Code fences and
// prose around the object are ignored. Anything else becomes a bare response.
func ParseReply(text string) Reply {
	trimmed := strings.TrimSpace(text)
	if obj, ok := FirstJSONObject(trimmed); ok {
		var probe map[string]json.RawMessage
		if json.Unmarshal(obj, &probe) == nil {
			if _, has := probe["response"]; has {
				var r Reply
				if json.Unmarshal(obj, &r) == nil {
					return r
				}
			}
		}
	}
	return Reply{Response: trimmed}
}

// FirstJSONObject returns the first complete JSON object embedded in text.
func FirstJSONObject(text string) (json.RawMessage, bool) {
	data := []byte(text)
	for i := bytes.IndexByte(data, '{'); i >= 0; {
		dec := json.NewDecoder(bytes.NewReader(data[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return raw, true
		}
		next := bytes.IndexByte(data[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, false
}
