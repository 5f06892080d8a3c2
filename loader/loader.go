package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ledongthuc/pdf"

	"policychat-backend/models"
)

// LoadDir loads every supported file directly under dir. PDF files yield one
// document per page; plain-text files yield one document each. Files that
// cannot be read are skipped with a warning so one bad upload does not sink
// the whole indexing pass. Zero documents is not an error here; the caller
// decides what an empty corpus means.
func LoadDir(dir string) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read document directory: %w", err)
	}

	var docs []models.Document
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pdf":
			pages, err := loadPDF(path)
			if err != nil {
				log.Warn("skipping unreadable pdf", "file", e.Name(), "error", err)
				continue
			}
			docs = append(docs, pages...)
		case ".txt", ".md":
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warn("skipping unreadable file", "file", e.Name(), "error", err)
				continue
			}
			text := strings.TrimSpace(string(data))
			if text == "" {
				continue
			}
			docs = append(docs, models.Document{
				Text:     text,
				Metadata: map[string]any{"source": e.Name()},
			})
		}
	}
	return docs, nil
}

func loadPDF(path string) ([]models.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []models.Document
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn("skipping unreadable pdf page", "file", filepath.Base(path), "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, models.Document{
			Text:     text,
			Metadata: map[string]any{"source": filepath.Base(path), "page": i},
		})
	}
	return docs, nil
}
