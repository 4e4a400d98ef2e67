package models

// File references a file already stored by the file service.
// Uploading is handled outside this module; records only carry the reference.
type File struct {
	ObjectID string
	Name     string
	URL      string
	MimeType string
	MetaData map[string]any
}

func (f File) Encode() map[string]any {
	m := map[string]any{
		"__type": TypeFile,
		"id":     f.ObjectID,
		"name":   f.Name,
		"url":    f.URL,
	}
	if f.MimeType != "" {
		m["mime_type"] = f.MimeType
	}
	if len(f.MetaData) > 0 {
		m["metaData"] = f.MetaData
	}
	return m
}

// Bytes is a binary attribute value.
type Bytes []byte
