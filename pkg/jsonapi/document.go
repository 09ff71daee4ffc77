package jsonapi

// NewErrorDocument creates an error document.
func NewErrorDocument(errors ...Error) Document {
	return Document{Errors: errors, JSONAPI: &JSONAPI{Version: Version}}
}
