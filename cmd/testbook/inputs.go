package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ongoingai/testbook/internal/intake"
	"github.com/ongoingai/testbook/internal/pipeline"
	"github.com/ongoingai/testbook/internal/prompt"
)

// imagePaths collects repeated --image flags in order.
type imagePaths []string

func (p *imagePaths) String() string {
	return strings.Join(*p, ",")
}

func (p *imagePaths) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("image path must not be empty")
	}
	*p = append(*p, value)
	return nil
}

// requestFlags are the generation inputs shared by generate and estimate.
type requestFlags struct {
	story            string
	storyFile        string
	glossary         string
	glossaryFile     string
	instructions     string
	instructionsFile string
	images           imagePaths
	model            string
}

func (f *requestFlags) register(flagSet *flag.FlagSet) {
	flagSet.StringVar(&f.story, "story", "", "User story text")
	flagSet.StringVar(&f.storyFile, "story-file", "", "Path to a file holding the user story")
	flagSet.StringVar(&f.glossary, "glossary", "", "Glossary text")
	flagSet.StringVar(&f.glossaryFile, "glossary-file", "", "Path to a glossary file")
	flagSet.StringVar(&f.instructions, "instructions", "", "Additional instructions")
	flagSet.StringVar(&f.instructionsFile, "instructions-file", "", "Path to an instructions file")
	flagSet.Var(&f.images, "image", "Path to a PNG or JPEG screenshot (repeatable)")
	flagSet.StringVar(&f.model, "model", "", "Requested model (default from config)")
}

// request reads the inputs and applies the intake limits. defaultGlossary
// stands in when no glossary is given.
func (f *requestFlags) request(limits intake.Limits, defaultGlossary string) (pipeline.Request, error) {
	story, err := textInput("story", f.story, f.storyFile)
	if err != nil {
		return pipeline.Request{}, err
	}
	glossary, err := textInput("glossary", f.glossary, f.glossaryFile)
	if err != nil {
		return pipeline.Request{}, err
	}
	if glossary == "" {
		glossary = strings.TrimSpace(defaultGlossary)
	}
	instructions, err := textInput("instructions", f.instructions, f.instructionsFile)
	if err != nil {
		return pipeline.Request{}, err
	}
	if err := limits.CheckText(story, glossary, instructions); err != nil {
		return pipeline.Request{}, err
	}

	images := make([]prompt.Image, 0, len(f.images))
	for _, path := range f.images {
		img, err := limits.LoadImage(path)
		if err != nil {
			return pipeline.Request{}, err
		}
		images = append(images, img)
	}
	images, err = limits.CheckImages(images)
	if err != nil {
		return pipeline.Request{}, err
	}

	return pipeline.Request{
		UserStory:    story,
		Glossary:     glossary,
		Instructions: instructions,
		Images:       images,
		Model:        strings.TrimSpace(f.model),
	}, nil
}

func textInput(name, inline, path string) (string, error) {
	path = strings.TrimSpace(path)
	if inline != "" && path != "" {
		return "", &usageError{msg: fmt.Sprintf("--%s and --%s-file are mutually exclusive", name, name)}
	}
	if path == "" {
		return strings.TrimSpace(inline), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s file: %w", name, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// usageError marks input mistakes that exit with status 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

// reportInputError prints an input failure and returns the exit code.
func reportInputError(errOut io.Writer, err error) int {
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintln(errOut, usage.Error())
		return 2
	}
	if intake.IsValidationError(err) {
		fmt.Fprintln(errOut, pipeline.UserMessage(err))
		return 1
	}
	fmt.Fprintln(errOut, err.Error())
	return 1
}
