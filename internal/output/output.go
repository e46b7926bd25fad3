// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package output writes converted Markdown to disk or a stream and encodes
// batch summaries.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/mdconvert/pkg/types"
)

// Summary formats accepted by EncodeSummary.
const (
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

// Frontmatter is the YAML header written above each Markdown file.
type Frontmatter struct {
	Source      string `yaml:"source"`
	Size        int64  `yaml:"size"`
	MimeType    string `yaml:"mime_type"`
	ConvertedAt string `yaml:"converted_at"`
	BatchID     string `yaml:"batch_id,omitempty"`
	Failed      bool   `yaml:"failed,omitempty"`
}

// Writer saves a batch's results as one .md file per source file.
type Writer struct {
	Dir        string
	KeepErrors bool

	// Now stamps converted_at; nil uses time.Now.
	Now func() time.Time
}

// WriteBatch writes the batch's results into w.Dir and returns the written
// paths in result order. Failed results are skipped unless KeepErrors is
// set. Two sources that share a base name get distinct files.
func (w Writer) WriteBatch(b types.Batch) ([]string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	stamp := now().UTC().Format(time.RFC3339)

	used := map[string]bool{}
	var paths []string
	for _, r := range b.Results {
		if !r.Succeeded && !w.KeepErrors {
			continue
		}
		name := uniqueName(MarkdownName(r.SourceFile.Name), used)
		data, err := Render(r, Frontmatter{
			Source:      r.SourceFile.Name,
			Size:        r.SourceFile.Size,
			MimeType:    r.SourceFile.MimeType,
			ConvertedAt: stamp,
			BatchID:     b.ID,
			Failed:      !r.Succeeded,
		})
		if err != nil {
			return paths, err
		}
		path := filepath.Join(w.Dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Render returns the result's Markdown prefixed with fm as YAML frontmatter.
func Render(r types.ConversionResult, fm Frontmatter) ([]byte, error) {
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(r.Content)
	if !strings.HasSuffix(r.Content, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// MarkdownName swaps the source file's extension for .md.
func MarkdownName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".md"
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	stem := strings.TrimSuffix(name, ".md")
	for i := 2; used[candidate]; i++ {
		candidate = stem + "-" + strconv.Itoa(i) + ".md"
	}
	used[candidate] = true
	return candidate
}

// Print writes every result to out, each under a heading naming its source.
func Print(out io.Writer, b types.Batch) error {
	for i, r := range b.Results {
		if i > 0 {
			if _, err := io.WriteString(out, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(out, "<!-- %s -->\n%s\n", r.SourceFile.Name, strings.TrimRight(r.Content, "\n")); err != nil {
			return err
		}
	}
	return nil
}

// FileSummary describes one result without its content.
type FileSummary struct {
	Name      string `json:"name" yaml:"name" msgpack:"name"`
	Size      int64  `json:"size" yaml:"size" msgpack:"size"`
	MimeType  string `json:"mime_type" yaml:"mime_type" msgpack:"mime_type"`
	Succeeded bool   `json:"succeeded" yaml:"succeeded" msgpack:"succeeded"`
}

// Summary is the machine-readable outcome of a batch.
type Summary struct {
	ID        string        `json:"id" yaml:"id" msgpack:"id"`
	Date      string        `json:"date" yaml:"date" msgpack:"date"`
	Converted int           `json:"converted" yaml:"converted" msgpack:"converted"`
	Failed    int           `json:"failed" yaml:"failed" msgpack:"failed"`
	Total     int           `json:"total" yaml:"total" msgpack:"total"`
	Files     []FileSummary `json:"files" yaml:"files" msgpack:"files"`
}

// Summarize drops the content from b.
func Summarize(b types.Batch) Summary {
	s := Summary{
		ID:        b.ID,
		Date:      b.Date,
		Converted: b.Converted,
		Failed:    b.Failed(),
		Total:     b.Total,
		Files:     make([]FileSummary, len(b.Results)),
	}
	for i, r := range b.Results {
		s.Files[i] = FileSummary{
			Name:      r.SourceFile.Name,
			Size:      r.SourceFile.Size,
			MimeType:  r.SourceFile.MimeType,
			Succeeded: r.Succeeded,
		}
	}
	return s
}

// EncodeSummary writes the batch summary to out in format (json, yaml, or
// msgpack).
func EncodeSummary(out io.Writer, b types.Batch, format string) error {
	s := Summarize(b)
	switch strings.ToLower(format) {
	case FormatJSON, "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(out).Encode(s)
	default:
		return fmt.Errorf("unsupported summary format %q", format)
	}
}
