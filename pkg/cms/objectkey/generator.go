package objectkey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Kind selects the upload sub-path for a stored file.
type Kind string

const (
	KindImageAsset   Kind = "image_asset"
	KindContentImage Kind = "content_image"
	KindResearchFile Kind = "research_file"
)

// Prefix returns the directory a kind is stored under.
func (k Kind) Prefix() string {
	switch k {
	case KindImageAsset:
		return "uploads/"
	case KindContentImage:
		return "content_images/"
	case KindResearchFile:
		return "pdfs/"
	default:
		return "misc/"
	}
}

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key for storage backends
	GenerateKey(kind Kind, fileName string) string
}

// FlatGenerator stores files directly under the kind prefix:
//
//	uploads/photo.jpg
//
// Two uploads with the same name map to the same key.
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(kind Kind, fileName string) string {
	return kind.Prefix() + sanitizeFilename(fileName)
}

// UniqueGenerator prefixes the file name with a short random token so
// repeated uploads of the same name never collide:
//
//	uploads/9f86d081_photo.jpg
type UniqueGenerator struct {
	// TokenLength is the number of hex characters taken from a UUID (default: 8)
	TokenLength int
	newID       func() uuid.UUID
}

func NewUniqueGenerator() *UniqueGenerator {
	return &UniqueGenerator{TokenLength: 8, newID: uuid.New}
}

func (g *UniqueGenerator) GenerateKey(kind Kind, fileName string) string {
	token := strings.ReplaceAll(g.newID().String(), "-", "")
	if g.TokenLength > 0 && g.TokenLength < len(token) {
		token = token[:g.TokenLength]
	}
	return fmt.Sprintf("%s%s_%s", kind.Prefix(), token, sanitizeFilename(fileName))
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(kind Kind, fileName string) string
}

func NewCustomFuncGenerator(fn func(kind Kind, fileName string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) GenerateKey(kind Kind, fileName string) string {
	return g.GenerateFunc(kind, fileName)
}

// New returns the generator for a layout name: "flat" or "unique".
func New(layout string) (Generator, error) {
	switch layout {
	case "", "unique":
		return NewUniqueGenerator(), nil
	case "flat":
		return NewFlatGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown object key layout %q (use 'unique' or 'flat')", layout)
	}
}

// sanitizeFilename keeps only the base name and replaces characters that are
// awkward in paths and URLs.
func sanitizeFilename(filename string) string {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if filename == "." || filename == "/" || filename == "" {
		filename = "file"
	}
	replacer := strings.NewReplacer(
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"#", "_",
		"%", "_",
		" ", "_",
	)
	return replacer.Replace(filename)
}
