package xmlgen

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type stubValidator struct {
	report ValidationReport
	err    error
}

func (v stubValidator) Validate(doc []byte) (ValidationReport, error) {
	return v.report, v.err
}

func TestStructuralValidateAcceptsGeneratedMessage(t *testing.T) {
	data, errMarshal := Marshal(BuildDocument(testBundle(), time.Now().UTC()))
	if errMarshal != nil {
		t.Fatalf("marshal: %v", errMarshal)
	}

	validation := StructuralValidate(data)
	if !validation.Valid {
		t.Fatalf("generated message must pass structural checks: %v", validation.Errors)
	}
}

func TestStructuralValidateRejectsBadRefId(t *testing.T) {
	doc := BuildDocument(testBundle(), time.Now().UTC())
	doc.MessageSpec.MessageRefId = "not-a-uuid"
	data, errMarshal := Marshal(doc)
	if errMarshal != nil {
		t.Fatalf("marshal: %v", errMarshal)
	}

	validation := StructuralValidate(data)
	if validation.Valid {
		t.Fatalf("bad MessageRefId must fail validation")
	}
	found := false
	for _, message := range validation.Errors {
		if strings.Contains(message, "MessageRefId") {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors = %v", validation.Errors)
	}
}

func TestStructuralValidateRejectsMissingCurrency(t *testing.T) {
	doc := BuildDocument(testBundle(), time.Now().UTC())
	doc.PaymentDataBody.ReportedPayees[0].Transactions[0].Amount.Currency = ""
	data, errMarshal := Marshal(doc)
	if errMarshal != nil {
		t.Fatalf("marshal: %v", errMarshal)
	}

	if validation := StructuralValidate(data); validation.Valid {
		t.Fatalf("missing currency must fail validation")
	}
}

func TestStructuralValidateRejectsWrongVersion(t *testing.T) {
	doc := BuildDocument(testBundle(), time.Now().UTC())
	doc.Version = "1.00"
	data, errMarshal := Marshal(doc)
	if errMarshal != nil {
		t.Fatalf("marshal: %v", errMarshal)
	}

	if validation := StructuralValidate(data); validation.Valid {
		t.Fatalf("wrong version must fail validation")
	}
}

func TestValidatingWriterUsesSchemaValidator(t *testing.T) {
	writer := NewValidatingWriter(t.TempDir(), stubValidator{
		report: ValidationReport{Valid: false, Errors: []string{"cvc-complex-type: invalid"}},
	})

	path, validation, errWrite := writer.Write(testBundle())
	if errWrite != nil {
		t.Fatalf("write: %v", errWrite)
	}
	// The artifact exists even when validation fails; the outcomes are distinct.
	if path == "" {
		t.Fatalf("artifact path missing")
	}
	if validation.Valid {
		t.Fatalf("validator result must pass through")
	}
	if len(validation.Errors) != 1 || !strings.Contains(validation.Errors[0], "cvc-complex-type") {
		t.Fatalf("errors = %v", validation.Errors)
	}
}

func TestValidatingWriterFallsBackOnValidatorError(t *testing.T) {
	writer := NewValidatingWriter(t.TempDir(), stubValidator{err: errors.New("schema file missing")})

	_, validation, errWrite := writer.Write(testBundle())
	if errWrite != nil {
		t.Fatalf("write: %v", errWrite)
	}
	if !validation.Valid {
		t.Fatalf("structural fallback must accept a generated message: %v", validation.Errors)
	}
	if len(validation.Warnings) == 0 {
		t.Fatalf("fallback must surface a warning about the validator")
	}
}

func TestValidatingWriterWithoutValidator(t *testing.T) {
	writer := NewValidatingWriter(t.TempDir(), nil)

	_, validation, errWrite := writer.Write(testBundle())
	if errWrite != nil {
		t.Fatalf("write: %v", errWrite)
	}
	if !validation.Valid {
		t.Fatalf("structural validation failed: %v", validation.Errors)
	}
}
