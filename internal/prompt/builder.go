package prompt

import (
	"encoding/base64"
	"strings"
)

const (
	GlossaryPlaceholder     = "No glossary provided. Use standard software terminology."
	InstructionsPlaceholder = "None. Follow standard test coverage patterns."
)

// Image is one attached picture as uploaded.
type Image struct {
	Name   string
	Format string
	Size   int64
	Data   []byte
}

// Input is the raw material for one prompt.
type Input struct {
	UserStory    string
	Glossary     string
	Instructions string
	Images       []Image
}

// ImagePart is an encoded image block ready for the provider.
type ImagePart struct {
	MediaType string
	DataURL   string
}

// Prompt is the assembled request. Images precede the user text when sent.
type Prompt struct {
	System string
	User   string
	Images []ImagePart
}

// Build assembles the prompt. The output depends only on in.
func Build(in Input) Prompt {
	p := Prompt{
		System: System,
		User:   userText(in.UserStory, in.Glossary, in.Instructions),
	}
	if len(in.Images) > 0 {
		p.Images = make([]ImagePart, 0, len(in.Images))
		for _, img := range in.Images {
			p.Images = append(p.Images, encodeImage(img))
		}
	}
	return p
}

// Render serializes the prompt in send order. Two prompts are identical iff
// their renders are byte-identical.
func (p Prompt) Render() string {
	var b strings.Builder
	b.WriteString("[system]\n")
	b.WriteString(p.System)
	b.WriteString("\n[user]\n")
	for _, img := range p.Images {
		b.WriteString(img.DataURL)
		b.WriteByte('\n')
	}
	b.WriteString(p.User)
	return b.String()
}

// MediaType normalizes a declared image format to a MIME type.
func MediaType(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	format = strings.TrimPrefix(format, "image/")
	switch format {
	case "png":
		return "image/png"
	case "jpg", "jpeg", "":
		return "image/jpeg"
	default:
		return "image/" + format
	}
}

func userText(story, glossary, instructions string) string {
	glossary = strings.TrimSpace(glossary)
	if glossary == "" {
		glossary = GlossaryPlaceholder
	}
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		instructions = InstructionsPlaceholder
	}

	var b strings.Builder
	b.WriteString("## USER STORY / REQUIREMENTS\n")
	b.WriteString(strings.TrimSpace(story))
	b.WriteString("\n\n## DOMAIN GLOSSARY\n")
	b.WriteString(glossary)
	b.WriteString("\n\n## ADDITIONAL INSTRUCTIONS\n")
	b.WriteString(instructions)
	b.WriteString("\n\n---\n\n")
	b.WriteString("Analyze the user story above and generate comprehensive manual test cases.\n")
	b.WriteString("Cover UI elements, validations, happy paths, negative cases, integrations and access rules.\n")
	b.WriteString("Return only the JSON array of test cases.")
	return b.String()
}

func encodeImage(img Image) ImagePart {
	mediaType := MediaType(img.Format)
	return ImagePart{
		MediaType: mediaType,
		DataURL:   "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
	}
}
