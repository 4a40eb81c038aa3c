// Package e2e provides end-to-end tests over a corpus of legal documents and clause queries.
package e2e

import (
	"strings"

	"github.com/hyperjump/legalease/internal/models"
)

// Clause is one numbered provision of a corpus document.
type Clause struct {
	Heading string
	Text    string
}

// E2EDocument is a document entry in the E2E corpus.
type E2EDocument struct {
	ID      string
	Title   string
	Clauses []Clause
}

// Content renders the document the way it would appear in a plain-text contract.
func (d E2EDocument) Content() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(d.Title))
	for _, c := range d.Clauses {
		b.WriteString("\n\n")
		b.WriteString(strings.ToUpper(c.Heading))
		b.WriteString(". ")
		b.WriteString(c.Text)
	}
	return b.String()
}

// QueryTestCase defines a question about one document and a fragment that must
// appear in at least one of the retrieved chunks.
type QueryTestCase struct {
	DocumentID  string
	Query       string
	Expected    string
	Description string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Documents    []E2EDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// BuildCorpus returns a corpus of contracts with one query per clause. Each
// clause carries distinctive wording so a query can assert the right chunk.
func BuildCorpus() *Corpus {
	docs := buildDocuments()
	cases := buildQueryTestCases(docs)
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

// clauseQueries maps a clause heading to the question asked about it and the
// fragment expected in the answer context.
var clauseQueries = map[string][2]string{
	"Rent":                    {"when is the monthly rent payable", "monthly rent"},
	"Security Deposit":        {"security deposit refund", "security deposit"},
	"Termination":             {"how can the agreement be terminated", "written notice"},
	"Confidentiality":         {"obligations regarding confidential information", "Confidential Information"},
	"Term":                    {"duration of the confidentiality obligations", "five years"},
	"Remedies":                {"injunctive relief for breach", "injunctive relief"},
	"Compensation":            {"annual base salary", "base salary"},
	"Non-Compete":             {"restriction on competing business", "competing business"},
	"Fees":                    {"service fees invoice payment", "invoice"},
	"Limitation of Liability": {"cap on liability", "aggregate liability"},
	"Interest":                {"interest rate on the loan", "interest rate"},
	"Default":                 {"events of default", "event of default"},
	"License Grant":           {"scope of the software license", "non-exclusive"},
	"Warranty":                {"warranty disclaimer", "as is"},
	"Governing Law":           {"which law governs", "governed by the laws"},
	"Indemnification":         {"indemnify against third party claims", "indemnify"},
}

func buildDocuments() []E2EDocument {
	return []E2EDocument{
		{
			ID:    "residential_lease",
			Title: "Residential Lease Agreement",
			Clauses: []Clause{
				{"Parties", "This Lease is made between Acme Properties LLC as Landlord and Jane Doe as Tenant for the apartment at 12 Harbor Street."},
				{"Rent", "The Tenant shall pay monthly rent of 2,000 USD on the first day of each calendar month by bank transfer."},
				{"Security Deposit", "The Tenant shall deposit a security deposit of 4,000 USD, refundable within thirty days after the premises are vacated."},
				{"Termination", "Either party may terminate this Lease upon sixty days written notice delivered to the other party."},
				{"Governing Law", "This Lease is governed by the laws of the State of New York."},
			},
		},
		{
			ID:    "mutual_nda",
			Title: "Mutual Non-Disclosure Agreement",
			Clauses: []Clause{
				{"Purpose", "Northwind Traders and Contoso Ltd wish to explore a joint venture in renewable energy storage."},
				{"Confidentiality", "Each Recipient shall hold the Confidential Information of the Discloser in strict confidence and use it only for the Purpose."},
				{"Term", "The obligations of confidentiality survive for five years after the date of last disclosure."},
				{"Remedies", "A breach may cause irreparable harm, and the Discloser is entitled to seek injunctive relief in addition to damages."},
			},
		},
		{
			ID:    "employment_agreement",
			Title: "Employment Agreement",
			Clauses: []Clause{
				{"Position", "Globex Corporation employs Hank Scorpio as Chief Engineer reporting to the Board of Directors."},
				{"Compensation", "The Employee receives an annual base salary of 180,000 USD paid in equal semi-monthly installments."},
				{"Non-Compete", "For twelve months after separation the Employee shall not engage in any competing business within the United States."},
				{"Termination", "The Company may terminate employment for cause immediately, or without cause upon thirty days written notice."},
			},
		},
		{
			ID:    "services_agreement",
			Title: "Master Services Agreement",
			Clauses: []Clause{
				{"Services", "Initech shall provide software maintenance and support services described in each Statement of Work."},
				{"Fees", "The Client shall pay each invoice within 45 days of receipt. Late invoices accrue a fee of one percent per month."},
				{"Limitation of Liability", "Neither party's aggregate liability shall exceed the fees paid in the twelve months preceding the claim."},
				{"Indemnification", "Initech shall indemnify the Client against third party claims alleging that the deliverables infringe intellectual property."},
			},
		},
		{
			ID:    "loan_agreement",
			Title: "Term Loan Agreement",
			Clauses: []Clause{
				{"Loan", "First Federal Bank agrees to lend the Borrower the principal sum of 500,000 USD."},
				{"Interest", "The outstanding principal bears interest at a fixed interest rate of 6.5 percent per annum, computed monthly."},
				{"Default", "Failure to pay any installment within ten days of its due date constitutes an event of default."},
				{"Governing Law", "This Agreement is governed by the laws of the State of Delaware."},
			},
		},
		{
			ID:    "software_license",
			Title: "Software License Agreement",
			Clauses: []Clause{
				{"License Grant", "Licensor grants Licensee a non-exclusive, non-transferable license to install the Software on up to fifty workstations."},
				{"Restrictions", "Licensee shall not reverse engineer, decompile or sublicense the Software."},
				{"Warranty", "The Software is provided as is, without warranty of merchantability or fitness for a particular purpose."},
			},
		},
	}
}

func buildQueryTestCases(docs []E2EDocument) []QueryTestCase {
	var cases []QueryTestCase
	for _, d := range docs {
		for _, c := range d.Clauses {
			q, ok := clauseQueries[c.Heading]
			if !ok {
				continue
			}
			cases = append(cases, QueryTestCase{
				DocumentID:  d.ID,
				Query:       q[0],
				Expected:    q[1],
				Description: d.ID + ": " + c.Heading,
			})
		}
	}
	return cases
}

// ToDocumentInputs converts the corpus documents to ingest inputs.
func (c *Corpus) ToDocumentInputs() []*models.DocumentInput {
	inputs := make([]*models.DocumentInput, len(c.Documents))
	for i, d := range c.Documents {
		inputs[i] = &models.DocumentInput{
			ID:    d.ID,
			Title: d.Title,
			Text:  d.Content(),
		}
	}
	return inputs
}

// containsFold reports whether text contains fragment, ignoring case.
func containsFold(text, fragment string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(fragment))
}
