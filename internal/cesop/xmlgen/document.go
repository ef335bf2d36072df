// Package xmlgen renders a report bundle as the CESOP payment data XML
// message, optionally validated against the official schema.
package xmlgen

import (
	"encoding/xml"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/cesop/report"

	"github.com/google/uuid"
)

// Fixed CESOP message constants.
const (
	NamespaceCESOP = "urn:ec.europa.eu:taxud:fiscalis:cesop:v1"
	NamespaceISO   = "urn:eu:taxud:isotypes:v1"
	NamespaceCM    = "urn:eu:taxud:commontypes:v1"

	SchemaVersion = "4.03"

	messageType      = "PMT"
	messageTypeIndic = "CESOP100"
	docTypeIndic     = "CESOP2"

	// transactionDateType CESOP701 marks the execution date.
	transactionDateType = "CESOP701"

	paymentMethod = "Card payment"
	payerMSSource = "Other"
)

// Document is the root CESOP element.
type Document struct {
	XMLName xml.Name `xml:"cesop:CESOP"`

	NamespaceCESOP string `xml:"xmlns:cesop,attr"`
	NamespaceISO   string `xml:"xmlns:iso,attr"`
	NamespaceCM    string `xml:"xmlns:cm,attr"`
	Version        string `xml:"version,attr"`

	MessageSpec     MessageSpec     `xml:"cesop:MessageSpec"`
	PaymentDataBody PaymentDataBody `xml:"cesop:PaymentDataBody"`
}

// MessageSpec is the message header.
type MessageSpec struct {
	TransmittingCountry string          `xml:"cesop:TransmittingCountry"`
	MessageType         string          `xml:"cesop:MessageType"`
	MessageTypeIndic    string          `xml:"cesop:MessageTypeIndic"`
	MessageRefId        string          `xml:"cesop:MessageRefId"`
	ReportingPeriod     ReportingPeriod `xml:"cesop:ReportingPeriod"`
	Timestamp           string          `xml:"cesop:Timestamp"`
}

// ReportingPeriod identifies the reported quarter.
type ReportingPeriod struct {
	Quarter int `xml:"cesop:Quarter"`
	Year    int `xml:"cesop:Year"`
}

// PaymentDataBody carries the PSP identity and payee blocks.
type PaymentDataBody struct {
	ReportingPSP   ReportingPSP    `xml:"cesop:ReportingPSP"`
	ReportedPayees []ReportedPayee `xml:"cesop:ReportedPayee"`
}

// ReportingPSP identifies the reporting payment service provider.
type ReportingPSP struct {
	PSPId PSPId   `xml:"cesop:PSPId"`
	Name  PSPName `xml:"cesop:Name"`
}

// PSPId is the PSP identifier with its scheme.
type PSPId struct {
	Type  string `xml:"PSPIdType,attr"`
	Value string `xml:",chardata"`
}

// PSPName is the PSP display name.
type PSPName struct {
	Type  string `xml:"nameType,attr"`
	Value string `xml:",chardata"`
}

// ReportedPayee is one merchant block.
type ReportedPayee struct {
	Name              PayeeName             `xml:"cesop:Name"`
	Country           string                `xml:"cesop:Country"`
	Address           Address               `xml:"cesop:Address"`
	EmailAddress      string                `xml:"cesop:EmailAddress,omitempty"`
	TAXIdentification TAXIdentification     `xml:"cesop:TAXIdentification"`
	AccountIdentifier AccountIdentifier     `xml:"cesop:AccountIdentifier"`
	Transactions      []ReportedTransaction `xml:"cesop:ReportedTransaction"`
	DocSpec           DocSpec               `xml:"cesop:DocSpec"`
}

// PayeeName is the merchant's reported name.
type PayeeName struct {
	Type  string `xml:"nameType,attr"`
	Value string `xml:",chardata"`
}

// Address is the payee's fixed-format address.
type Address struct {
	LegalAddressType string `xml:"legalAddressType,attr"`
	Street           string `xml:"cm:Street,omitempty"`
	City             string `xml:"cm:City,omitempty"`
	PostCode         string `xml:"cm:PostCode,omitempty"`
	CountryCode      string `xml:"cm:CountryCode"`
}

// TAXIdentification carries the payee's VAT identifier.
type TAXIdentification struct {
	VATId VATId `xml:"cesop:VATId"`
}

// VATId is a VAT number with its issuing country.
type VATId struct {
	IssuedBy string `xml:"issuedBy,attr"`
	Value    string `xml:",chardata"`
}

// AccountIdentifier is the payee's payout account.
type AccountIdentifier struct {
	CountryCode string `xml:"CountryCode,attr"`
	Type        string `xml:"type,attr"`
	Value       string `xml:",chardata"`
}

// ReportedTransaction is one reported payment.
type ReportedTransaction struct {
	IsRefund bool `xml:"IsRefund,attr"`

	TransactionIdentifier string          `xml:"cesop:TransactionIdentifier"`
	DateTime              TransactionDate `xml:"cesop:DateTime"`
	Amount                Amount          `xml:"cesop:Amount"`
	PaymentMethod         PaymentMethod   `xml:"cesop:PaymentMethod"`
	InitiatedAtPremises   bool            `xml:"cesop:InitiatedAtPhysicalPremisesOfMerchant"`
	PayerMS               PayerMS         `xml:"cesop:PayerMS"`
}

// TransactionDate is the execution timestamp with its CESOP date type.
type TransactionDate struct {
	Type  string `xml:"transactionDateType,attr"`
	Value string `xml:",chardata"`
}

// Amount is a two-decimal amount with its currency.
type Amount struct {
	Currency string `xml:"currency,attr"`
	Value    string `xml:",chardata"`
}

// PaymentMethod is the CESOP payment method wrapper.
type PaymentMethod struct {
	Type string `xml:"cm:PaymentMethodType"`
}

// PayerMS is the payer's member state with its source.
type PayerMS struct {
	Source string `xml:"PayerMSSource,attr"`
	Value  string `xml:",chardata"`
}

// DocSpec is the per-payee document trailer.
type DocSpec struct {
	DocTypeIndic string `xml:"cesop:DocTypeIndic"`
	DocRefId     string `xml:"cesop:DocRefId"`
}

// BuildDocument maps a bundle onto the CESOP message structure. Message
// and document reference ids are fresh UUIDs on every call.
func BuildDocument(bundle *report.Bundle, now time.Time) *Document {
	doc := &Document{
		NamespaceCESOP: NamespaceCESOP,
		NamespaceISO:   NamespaceISO,
		NamespaceCM:    NamespaceCM,
		Version:        SchemaVersion,
		MessageSpec: MessageSpec{
			TransmittingCountry: cesop.NormalizeCountry(bundle.PSP.Country),
			MessageType:         messageType,
			MessageTypeIndic:    messageTypeIndic,
			MessageRefId:        uuid.NewString(),
			ReportingPeriod:     ReportingPeriod{Quarter: bundle.Quarter, Year: bundle.Year},
			Timestamp:           now.UTC().Format(time.RFC3339),
		},
		PaymentDataBody: PaymentDataBody{
			ReportingPSP: ReportingPSP{
				PSPId: PSPId{Type: "BIC", Value: bundle.PSP.BIC},
				Name:  PSPName{Type: "BUSINESS", Value: bundle.PSP.Name},
			},
		},
	}

	for _, group := range bundle.Groups {
		profile := group.Profile
		payee := ReportedPayee{
			Name:    PayeeName{Type: "BUSINESS", Value: profile.Name},
			Country: profile.Country,
			Address: Address{
				LegalAddressType: "CESOP303",
				Street:           profile.Street,
				City:             profile.City,
				PostCode:         profile.PostalCode,
				CountryCode:      profile.Country,
			},
			EmailAddress: profile.Email,
			TAXIdentification: TAXIdentification{
				VATId: VATId{IssuedBy: profile.Country, Value: profile.VATNumber},
			},
			AccountIdentifier: AccountIdentifier{
				CountryCode: profile.Country,
				Type:        "IBAN",
				Value:       profile.IBAN,
			},
			DocSpec: DocSpec{DocTypeIndic: docTypeIndic, DocRefId: uuid.NewString()},
		}
		for _, record := range group.Transactions {
			payee.Transactions = append(payee.Transactions, ReportedTransaction{
				IsRefund:              record.IsRefund,
				TransactionIdentifier: record.TransactionID,
				DateTime: TransactionDate{
					Type:  transactionDateType,
					Value: record.Timestamp.UTC().Format(time.RFC3339),
				},
				Amount: Amount{
					Currency: record.Currency,
					Value:    report.FormatAmount(record.Amount),
				},
				PaymentMethod:       PaymentMethod{Type: paymentMethod},
				InitiatedAtPremises: false,
				PayerMS:             PayerMS{Source: payerMSSource, Value: record.IssuingCountry},
			})
		}
		doc.PaymentDataBody.ReportedPayees = append(doc.PaymentDataBody.ReportedPayees, payee)
	}

	return doc
}
