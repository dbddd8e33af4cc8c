package validators

import "unicode/utf8"

type ReportRequest struct {
	Reason    string `json:"reason" validate:"max=2000"`
	SessionID string `json:"session_id" validate:"omitempty,object_id"`
}

func ValidateReport(req *ReportRequest) ValidationErrors {
	req.Reason = SanitizeInput(req.Reason)
	return ValidateStruct(req)
}

// ValidMessageContent reports whether a chat message may be persisted:
// non-empty and at most maxLength characters.
func ValidMessageContent(content string, maxLength int) bool {
	if content == "" {
		return false
	}
	return utf8.RuneCountInString(content) <= maxLength
}
