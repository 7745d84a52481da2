// Package nrepl implements the client side of the nREPL wire protocol:
// bencode-framed messages over TCP, session cloning, and evaluation
// round-trips with request/response correlation by message id.
package nrepl

// Message is one protocol frame: a mapping from string keys to string,
// integer, list, or nested map values. Every outbound message that expects a
// correlated reply carries a unique "id"; every message belonging to a
// session carries that session's identifier.
type Message map[string]any

// getString returns the value under key when it is a string. Bencode byte
// strings decode to Go strings, so this covers every textual field.
func (m Message) getString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ID returns the message's correlation id, or "" when absent.
func (m Message) ID() string {
	s, _ := m.getString("id")
	return s
}

// Session returns the message's session identifier, or "" when absent.
func (m Message) Session() string {
	s, _ := m.getString("session")
	return s
}

// Status returns the message's status tags. Responses use "done" to mark the
// end of a request's frame stream and "eval-error" to mark a failed
// evaluation.
func (m Message) Status() []string {
	raw, ok := m["status"].([]any)
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// HasStatus reports whether the message's status list contains tag.
func (m Message) HasStatus(tag string) bool {
	for _, s := range m.Status() {
		if s == tag {
			return true
		}
	}
	return false
}

// Value returns the evaluation result carried by this frame, if any. The
// text is the server's printed representation and is not interpreted.
func (m Message) Value() (string, bool) {
	return m.getString("value")
}

// Out returns captured standard output carried by this frame, if any.
func (m Message) Out() (string, bool) {
	return m.getString("out")
}

// Err returns captured error output carried by this frame, if any.
func (m Message) Err() (string, bool) {
	return m.getString("err")
}
