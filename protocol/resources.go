package protocol

// Resource describes a piece of context available from the server.
type Resource struct {
	URI         string                 `json:"uri"`
	Name        string                 `json:"name"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	MimeType    string                 `json:"mimeType,omitempty"`
	Size        *int                   `json:"size,omitempty"`
	Annotations *Annotations           `json:"annotations,omitempty"`
	Meta        map[string]interface{} `json:"_meta,omitempty"`
}

// Annotations provides optional hints for the client about a resource.
type Annotations struct {
	Audience     []string `json:"audience,omitempty"`
	Priority     *float64 `json:"priority,omitempty"`
	LastModified string   `json:"lastModified,omitempty"`
}

// ResourceContents is the wire form shared by text and blob resource contents.
// Exactly one of Text or Blob is set by well-behaved servers.
type ResourceContents struct {
	URI      string                 `json:"uri"`
	MimeType string                 `json:"mimeType,omitempty"`
	Text     *string                `json:"text,omitempty"`
	Blob     *string                `json:"blob,omitempty"`
	Meta     map[string]interface{} `json:"_meta,omitempty"`
}

// IsBlob reports whether the contents carry base64 binary data.
func (rc ResourceContents) IsBlob() bool {
	return rc.Blob != nil
}

// ListResourcesRequestParams defines parameters for 'resources/list'.
type ListResourcesRequestParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourcesResult defines the result for 'resources/list'.
type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ReadResourceRequestParams defines parameters for 'resources/read'.
type ReadResourceRequestParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult defines the result for 'resources/read'.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}
