// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SelectedFile is a file chosen for conversion: its bytes plus the metadata
// the upload filter derived from it. It is not modified after selection.
type SelectedFile struct {
	// Name is the base file name, including the extension.
	Name string `json:"name" yaml:"name" msgpack:"name"`

	// Size is the file size in bytes.
	Size int64 `json:"size" yaml:"size" msgpack:"size"`

	// MimeType is the media type derived from the extension.
	MimeType string `json:"mime_type" yaml:"mime_type" msgpack:"mime_type"`

	// Data holds the file contents.
	Data []byte `json:"-" yaml:"-" msgpack:"-"`
}

// ConversionResult is the outcome of converting one SelectedFile. Content
// holds the Markdown on success, or a readable inline error message when
// Succeeded is false.
type ConversionResult struct {
	SourceFile SelectedFile `json:"file" yaml:"file" msgpack:"file"`
	Content    string       `json:"content" yaml:"content" msgpack:"content"`
	Succeeded  bool         `json:"succeeded" yaml:"succeeded" msgpack:"succeeded"`
}

// Batch is the aggregated outcome of one conversion run. Results are in
// selection order, one per submitted file.
type Batch struct {
	ID        string             `json:"id" yaml:"id" msgpack:"id"`
	Date      string             `json:"date" yaml:"date" msgpack:"date"`
	Results   []ConversionResult `json:"results" yaml:"results" msgpack:"results"`
	Converted int                `json:"converted" yaml:"converted" msgpack:"converted"`
	Total     int                `json:"total" yaml:"total" msgpack:"total"`
}

// Failed returns the number of results that did not succeed.
func (b Batch) Failed() int {
	return b.Total - b.Converted
}

// HasFailures reports whether any file in the batch failed conversion.
func (b Batch) HasFailures() bool {
	return b.Failed() > 0
}
