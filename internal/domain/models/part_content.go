package models

// Well-known keys inside Part.Content, by part type.
//
// file (inline, pre-resolution):
//
//	{"data": <base64>, "mime_type": "image/png", "filename": "a.png"}
//
// file (resolved):
//
//	{"key": "attachments/<user>/<uuid>", "mime_type": "image/png",
//	 "filename": "a.png", "size": 1234}
//
// tool_use:
//
//	{"tool_call_id": "...", "tool_name": "...", "input": {...}}
//
// tool_result:
//
//	{"tool_call_id": "...", "result": <any>, "is_error": bool}
//
// thinking (alongside TextContent):
//
//	{"signature": "..."}
const (
	ContentKeyData      = "data"
	ContentKeyKey       = "key"
	ContentKeyMimeType  = "mime_type"
	ContentKeyFilename  = "filename"
	ContentKeySize      = "size"
	ContentKeyToolID    = "tool_call_id"
	ContentKeyToolName  = "tool_name"
	ContentKeyInput     = "input"
	ContentKeyResult    = "result"
	ContentKeyIsError   = "is_error"
	ContentKeySignature = "signature"
)

// IsInlineFile reports whether a file part still carries inline base64 data
// rather than an object-storage key.
func IsInlineFile(p Part) bool {
	if p.PartType != PartTypeFile || p.Content == nil {
		return false
	}
	_, hasData := p.Content[ContentKeyData]
	_, hasKey := p.Content[ContentKeyKey]
	return hasData && !hasKey
}
