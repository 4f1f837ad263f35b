package types

// Credentials are passed with every public operation and checked before
// any spool or engine access.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ConversionRequest asks for a single document to be converted.
// Data takes precedence over Identifier when both are set.
type ConversionRequest struct {
	// Data is the base64-encoded document payload.
	Data string
	// Identifier references a finalized spool entry.
	Identifier Identifier
	// InFormat and OutFormat are format tokens (pdf, odt, ...).
	InFormat  string
	OutFormat string
	Credentials
}

// JoinRequest asks for several spooled documents to be concatenated.
// Identifier order defines document order in the output.
type JoinRequest struct {
	Identifiers []Identifier
	InFormat    string
	OutFormat   string
	Credentials
}

// UploadRequest carries one chunk of a (possibly chunked) upload.
type UploadRequest struct {
	// Data is a text-safe (base64) fragment of the document.
	Data string
	// IsLast finalizes the spool entry after this chunk is appended.
	IsLast bool
	// Identifier resumes an in-progress upload; empty starts a new one.
	Identifier Identifier
	Credentials
}

// UploadResult is returned for every accepted chunk.
type UploadResult struct {
	Identifier Identifier `json:"identifier"`
}
