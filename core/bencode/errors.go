package bencode

import "errors"

// ErrProtocol marks a malformed wire frame. A connection that produced it is
// unusable and must not be retried.
var ErrProtocol = errors.New("bencode protocol error")
