package handlers

// Common error message constants shared across handlers
const (
	ErrMsgInvalidRequestBody = "Invalid request body"
	ErrMsgEmptyBody          = "Request body is required"
	ErrMsgUnauthorized       = "Unauthorized"
	ErrMsgMissingFile        = "A file is required in the \"file\" form field"
	ErrMsgUnknownMasterType  = "Unknown master data type"
)

// Upload form fields
const (
	formFieldFile = "file"
)
