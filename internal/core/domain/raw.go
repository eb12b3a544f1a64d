package domain

// RawDocument is a file's bytes before text extraction.
type RawDocument struct {
	// URI is the original location (file path, URL, etc).
	URI string

	// MIMEType is the content type, e.g. "text/html". Parameters such as
	// charset are allowed.
	MIMEType string

	// Content is the raw bytes.
	Content []byte
}
