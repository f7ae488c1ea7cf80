package providers

// ContentText extracts plain text from an OpenAI-style message content
// value, which is either a string or an array of typed content parts.
// Non-text parts are skipped.
func ContentText(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		var out string
		for _, part := range v {
			m, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if m["type"] == "text" {
				if text, ok := m["text"].(string); ok {
					out += text
				}
			}
		}
		return out
	default:
		return ""
	}
}

// StopSequences converts an OpenAI-style stop value (string or array of
// strings) into a string slice. Invalid values yield nil.
func StopSequences(stop interface{}) []string {
	switch v := stop.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}
