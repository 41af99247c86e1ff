package stack

import "strings"

// normalizeLogMessage enforces the trailing-newline convention on log
// messages unless exact is set. While normalizing, a message with an
// interior newline — any '\n' before the final byte — is rejected, since
// there is no normalization that could make such a message well-formed.
// With exact set, the message is stored as given.
func normalizeLogMessage(msg string, exact bool) (string, error) {
	if exact {
		return msg, nil
	}
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 && idx != len(msg)-1 {
		return "", &ApiError{Msg: "log message contains an embedded newline"}
	}
	if msg == "" || msg[len(msg)-1] != '\n' {
		return msg + "\n", nil
	}
	return msg, nil
}
