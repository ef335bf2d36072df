package xmlgen

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/altpaynet/regreport/internal/cesop/report"

	log "github.com/sirupsen/logrus"
)

// Writer renders a bundle into a CESOP XML artifact on disk.
type Writer struct {
	outputDir string
	now       func() time.Time
}

// NewWriter wires a Writer targeting the given output directory.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir, now: time.Now}
}

// Write marshals the bundle and writes the artifact, returning its
// path. The file is written to a temp path and renamed on success so a
// failed run never leaves a half-written report behind.
func (w *Writer) Write(bundle *report.Bundle) (string, error) {
	doc := BuildDocument(bundle, w.now())
	return w.writeDocument(doc, bundle)
}

func (w *Writer) writeDocument(doc *Document, bundle *report.Bundle) (string, error) {
	data, errMarshal := Marshal(doc)
	if errMarshal != nil {
		return "", errMarshal
	}

	if errMkdir := os.MkdirAll(w.outputDir, 0755); errMkdir != nil {
		return "", fmt.Errorf("xmlgen: create output dir: %w", errMkdir)
	}

	name := report.ArtifactName(bundle.Quarter, bundle.Year, "xml", w.now())
	path := filepath.Join(w.outputDir, name)
	tmpPath := path + ".tmp"

	if errWrite := os.WriteFile(tmpPath, data, 0644); errWrite != nil {
		return "", fmt.Errorf("xmlgen: write artifact: %w", errWrite)
	}
	if errRename := os.Rename(tmpPath, path); errRename != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("xmlgen: finalize artifact: %w", errRename)
	}

	log.WithField("path", path).Info("xmlgen: report written")
	return path, nil
}

// Marshal renders a document with the XML declaration prepended.
func Marshal(doc *Document) ([]byte, error) {
	body, errMarshal := xml.MarshalIndent(doc, "", "  ")
	if errMarshal != nil {
		return nil, fmt.Errorf("xmlgen: marshal: %w", errMarshal)
	}
	return append([]byte(xml.Header), body...), nil
}
