package xmlgen

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/altpaynet/regreport/internal/cesop/report"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ValidationReport is the outcome of validating a generated message.
// A failed validation is a distinct outcome from a failed write: the
// artifact exists either way.
type ValidationReport struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// SchemaValidator validates a rendered XML document against the CESOP
// XSD. Implementations are external collaborators; the schema file and
// its tooling are configuration, not core logic.
type SchemaValidator interface {
	Validate(doc []byte) (ValidationReport, error)
}

// ValidatingWriter writes the same document as Writer and validates the
// result, falling back to structural business-rule checks when schema
// validation is unavailable or fails for infrastructure reasons.
type ValidatingWriter struct {
	writer    *Writer
	validator SchemaValidator
	now       func() time.Time
}

// NewValidatingWriter wires a ValidatingWriter. validator may be nil,
// in which case only the structural fallback runs.
func NewValidatingWriter(outputDir string, validator SchemaValidator) *ValidatingWriter {
	return &ValidatingWriter{writer: NewWriter(outputDir), validator: validator, now: time.Now}
}

// Write renders, writes and validates the bundle. The returned path is
// valid whenever err is nil, regardless of the validation outcome.
func (w *ValidatingWriter) Write(bundle *report.Bundle) (string, ValidationReport, error) {
	doc := BuildDocument(bundle, w.now())

	data, errMarshal := Marshal(doc)
	if errMarshal != nil {
		return "", ValidationReport{}, errMarshal
	}

	path, errWrite := w.writer.writeDocument(doc, bundle)
	if errWrite != nil {
		return "", ValidationReport{}, errWrite
	}

	validation := w.validate(data)
	return path, validation, nil
}

func (w *ValidatingWriter) validate(data []byte) ValidationReport {
	if w.validator != nil {
		validation, errValidate := w.validator.Validate(data)
		if errValidate == nil {
			return validation
		}
		log.WithError(errValidate).Warn("xmlgen: schema validation unavailable, using structural checks")
		validation = StructuralValidate(data)
		validation.Warnings = append(validation.Warnings,
			fmt.Sprintf("schema validation unavailable: %v", errValidate))
		return validation
	}
	return StructuralValidate(data)
}

// StructuralValidate applies business-rule checks to a rendered message
// without the XSD: namespace presence, version string, required header
// elements, per-transaction PayerMS/Amount/currency presence, and
// UUID-format reference ids.
func StructuralValidate(data []byte) ValidationReport {
	validation := ValidationReport{Valid: true}
	fail := func(format string, args ...any) {
		validation.Valid = false
		validation.Errors = append(validation.Errors, fmt.Sprintf(format, args...))
	}

	text := string(data)
	for _, ns := range []string{NamespaceCESOP, NamespaceISO, NamespaceCM} {
		if !strings.Contains(text, ns) {
			fail("missing namespace declaration %s", ns)
		}
	}

	var (
		sawRoot        bool
		sawMessageSpec bool
		sawPeriod      bool
		sawPSP         bool
		payeeCount     int
		txnCount       int

		messageRefID string
		docRefIDs    []string

		inTxn       bool
		txnPayerMS  bool
		txnAmount   bool
		txnCurrency bool

		capture  string
		captured strings.Builder
	)

	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, errToken := decoder.Token()
		if errToken == io.EOF {
			break
		}
		if errToken != nil {
			fail("malformed xml: %v", errToken)
			break
		}

		switch element := token.(type) {
		case xml.StartElement:
			switch element.Name.Local {
			case "CESOP":
				sawRoot = true
				version := ""
				for _, attr := range element.Attr {
					if attr.Name.Local == "version" {
						version = attr.Value
					}
				}
				if version != SchemaVersion {
					fail("version = %q, want %q", version, SchemaVersion)
				}
			case "MessageSpec":
				sawMessageSpec = true
			case "ReportingPeriod":
				sawPeriod = true
			case "ReportingPSP":
				sawPSP = true
			case "ReportedPayee":
				payeeCount++
			case "ReportedTransaction":
				txnCount++
				inTxn = true
				txnPayerMS, txnAmount, txnCurrency = false, false, false
			case "PayerMS":
				if inTxn {
					txnPayerMS = true
				}
			case "Amount":
				if inTxn {
					txnAmount = true
					for _, attr := range element.Attr {
						if attr.Name.Local == "currency" && strings.TrimSpace(attr.Value) != "" {
							txnCurrency = true
						}
					}
				}
			case "MessageRefId", "DocRefId":
				capture = element.Name.Local
				captured.Reset()
			}
		case xml.CharData:
			if capture != "" {
				captured.Write(element)
			}
		case xml.EndElement:
			switch element.Name.Local {
			case "MessageRefId":
				messageRefID = strings.TrimSpace(captured.String())
				capture = ""
			case "DocRefId":
				docRefIDs = append(docRefIDs, strings.TrimSpace(captured.String()))
				capture = ""
			case "ReportedTransaction":
				if !txnPayerMS {
					fail("transaction %d missing PayerMS", txnCount)
				}
				if !txnAmount {
					fail("transaction %d missing Amount", txnCount)
				} else if !txnCurrency {
					fail("transaction %d missing currency attribute", txnCount)
				}
				inTxn = false
			}
		}
	}

	if !sawRoot {
		fail("missing CESOP root element")
	}
	if !sawMessageSpec {
		fail("missing MessageSpec")
	}
	if !sawPeriod {
		fail("missing ReportingPeriod")
	}
	if !sawPSP {
		fail("missing ReportingPSP")
	}
	if payeeCount == 0 {
		fail("no ReportedPayee blocks")
	}
	if txnCount == 0 {
		validation.Warnings = append(validation.Warnings, "message contains no transactions")
	}

	if _, errParse := uuid.Parse(messageRefID); errParse != nil {
		fail("MessageRefId %q is not a UUID", messageRefID)
	}
	for _, id := range docRefIDs {
		if _, errParse := uuid.Parse(id); errParse != nil {
			fail("DocRefId %q is not a UUID", id)
		}
	}

	return validation
}
