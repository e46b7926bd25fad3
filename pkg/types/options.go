// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// LLMModel identifies the model the remote API may use for image descriptions.
type LLMModel string

const (
	ModelGPT4o           LLMModel = "gpt-4o"
	ModelGPT4            LLMModel = "gpt-4"
	ModelGPT4Turbo       LLMModel = "gpt-4-turbo"
	ModelGPT35Turbo      LLMModel = "gpt-3.5-turbo"
	ModelClaude3Opus     LLMModel = "claude-3-opus"
	ModelClaude3Sonnet   LLMModel = "claude-3-sonnet"
	ModelClaude3Haiku    LLMModel = "claude-3-haiku"
	ModelGeminiPro       LLMModel = "gemini-pro"
	ModelGeminiProVision LLMModel = "gemini-pro-vision"
)

// Models lists the selectable models in display order. The first entry is
// the default.
var Models = []LLMModel{
	ModelGPT4o,
	ModelGPT4,
	ModelGPT4Turbo,
	ModelGPT35Turbo,
	ModelClaude3Opus,
	ModelClaude3Sonnet,
	ModelClaude3Haiku,
	ModelGeminiPro,
	ModelGeminiProVision,
}

// Valid reports whether m is one of Models.
func (m LLMModel) Valid() bool {
	for _, known := range Models {
		if m == known {
			return true
		}
	}
	return false
}

// ConversionOptions carries the user's conversion preferences. The record is
// passed through to the conversion client unchanged; the remote API defines
// what each field means.
type ConversionOptions struct {
	EnablePlugins                bool     `json:"enable_plugins" yaml:"enable_plugins"`
	UseDocumentIntelligence      bool     `json:"use_document_intelligence" yaml:"use_document_intelligence"`
	DocumentIntelligenceEndpoint string   `json:"document_intelligence_endpoint,omitempty" yaml:"document_intelligence_endpoint,omitempty"`
	UseLLMForImages              bool     `json:"use_llm_for_images" yaml:"use_llm_for_images"`
	LLMModel                     LLMModel `json:"llm_model" yaml:"llm_model"`

	// LLMAPIKey stays in memory only. It has no serialized form.
	LLMAPIKey string `json:"-" yaml:"-" msgpack:"-"`

	PreserveStructure bool `json:"preserve_structure" yaml:"preserve_structure"`
	ExtractMetadata   bool `json:"extract_metadata" yaml:"extract_metadata"`
	IncludeImages     bool `json:"include_images" yaml:"include_images"`
}

// DefaultOptions returns the options a fresh session starts with.
func DefaultOptions() ConversionOptions {
	return ConversionOptions{
		LLMModel:          ModelGPT4o,
		PreserveStructure: true,
		ExtractMetadata:   true,
		IncludeImages:     true,
	}
}

// Validate checks the fields that have a closed set of values.
func (o ConversionOptions) Validate() error {
	if o.LLMModel != "" && !o.LLMModel.Valid() {
		return fmt.Errorf("unknown LLM model %q", o.LLMModel)
	}
	if o.UseDocumentIntelligence && o.DocumentIntelligenceEndpoint == "" {
		return fmt.Errorf("document intelligence requires an endpoint")
	}
	return nil
}
