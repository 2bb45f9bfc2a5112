// Package docio loads YAML documents from disk and writes deduplicated
// results back, with optional backups and a dry-run mode.
package docio

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kevinwang15/yamldedup"
)

// Source reads named YAML files.
type Source struct {
	log      *zap.Logger
	readFile func(string) ([]byte, error)
}

// NewSource returns a Source reading from the local filesystem. A nil
// logger disables logging.
func NewSource(log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{log: log, readFile: os.ReadFile}
}

// Load reads and parses one file.
func (s *Source) Load(name string) (*yamldedup.Document, error) {
	s.log.Info("loading file", zap.String("file", name))
	data, err := s.readFile(name)
	if err != nil {
		return nil, yamldedup.WithName(fmt.Errorf("read: %w", err), name)
	}
	doc, err := yamldedup.Parse(name, data)
	if err != nil {
		return nil, err
	}
	s.log.Debug("parsed file", zap.String("file", name), zap.Int("indent", doc.Indent))
	return doc, nil
}

// LoadAll loads names in order. The first failure aborts the batch so
// that no document is processed against an incomplete set.
func (s *Source) LoadAll(names []string) ([]*yamldedup.Document, error) {
	docs := make([]*yamldedup.Document, 0, len(names))
	for _, name := range names {
		doc, err := s.Load(name)
		if err != nil {
			s.log.Error("failed to load file", zap.String("file", name), zap.Error(err))
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
