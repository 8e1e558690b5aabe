package reply

// DisplayText returns the text shown to the learner for a persona reply:
// the "message" value when the reply holds a non-empty one, otherwise the
// reply unchanged.
func DisplayText(raw string) string {
	r, ok := Extract(raw)
	if !ok {
		return raw
	}
	if msg, ok := r.Message(); ok && msg != "" {
		return msg
	}
	return raw
}
