package workflow

import (
	"fmt"
	"strings"

	"github.com/hyperjump/legalease/internal/models"
)

const basePrompt = `You are an assistant that analyzes legal documents such as contracts and agreements.
Work only from the document content you are given and report information exactly as it is written.
Quote clauses, dates and other important sentences verbatim instead of paraphrasing them.`

const jsonOnly = `Respond with valid JSON only.`

// schemas holds the output shape each structured analysis must follow.
var schemas = map[models.AnalysisType]string{
	models.AnalysisSummary: `Summarize the document using this JSON format:
{
  "summary": "Short plain-language overview",
  "document_type": "Kind of legal document",
  "main_points": ["point1", "point2", "point3"],
  "key_stakeholders": ["party1", "party2"],
  "purpose": "What the document is for"
}`,
	models.AnalysisClauses: `List the important clauses using this JSON format:
{
  "important_clauses": [
    {
      "clause_text": "Clause text exactly as written",
      "clause_type": "obligation/liability/right/risk/condition",
      "page_number": 1,
      "section": "Section name",
      "significance": "Why the clause matters"
    }
  ]
}`,
	models.AnalysisDates: `List the important dates using this JSON format:
{
  "important_dates": [
    {
      "date_text": "Date mention exactly as written, with its context",
      "date_value": "Normalized date when one can be derived",
      "date_type": "deadline/renewal/termination/payment/other",
      "page_number": 1,
      "section": "Section name",
      "context": "Surrounding text"
    }
  ]
}`,
	models.AnalysisRisks: `List the attention points and risks using this JSON format:
{
  "attention_points": [
    {
      "risk_text": "Sentence describing the risk, exactly as written",
      "risk_type": "liability/obligation/penalty/unusual_term/ambiguous",
      "severity": "high/medium/low",
      "page_number": 1,
      "section": "Section name",
      "implications": "What it means for the parties"
    }
  ]
}`,
	models.AnalysisEntities: `List the key people, organizations and places using this JSON format:
{
  "key_entities": {
    "parties": [
      {
        "name": "Name exactly as written",
        "role": "Role in the agreement",
        "page_number": 1,
        "context": "How the party is referred to"
      }
    ],
    "companies": ["Company names as written"],
    "locations": ["Addresses and jurisdictions"],
    "signatories": ["People who sign the document"],
    "other_entities": ["Other relevant entities"]
  }
}`,
	models.AnalysisBreakdown: `Break the document down section by section using this JSON format:
{
  "detailed_breakdown": [
    {
      "section_title": "Section name",
      "section_summary": "What the section covers",
      "key_points": ["point1", "point2"],
      "important_clauses": ["clause1", "clause2"],
      "page_numbers": [1, 2],
      "subsections": ["subsection1", "subsection2"]
    }
  ]
}`,
	models.AnalysisMindmap: `Describe the document as a Mermaid mind map using this JSON format:
{
  "mindmap": {
    "mermaid_code": "mindmap\n  root((Document title))\n    Section1\n      Clause1\n    Section2\n      Date1",
    "structure": {
      "main_sections": ["section1", "section2"],
      "key_clauses": ["clause1", "clause2"],
      "important_dates": ["date1", "date2"],
      "risks": ["risk1", "risk2"],
      "entities": ["party1", "party2"]
    }
  }
}`,
}

const chatInstructions = `Answer the user's question about the document and cite the clauses or sections you rely on.
Support the answer with the document's own wording.
Explain only what the document says; do not give legal advice.`

// SystemPrompt returns the system prompt for t.
func SystemPrompt(t models.AnalysisType) string {
	if t == models.AnalysisChat {
		return basePrompt + "\n\n" + chatInstructions
	}
	return basePrompt + " " + jsonOnly + "\n\n" + schemas[t]
}

const noContext = "No relevant context found."

// FormatContext renders chunks as numbered blocks labeled with section and page.
func FormatContext(chunks []models.RetrievedChunk) string {
	if len(chunks) == 0 {
		return noContext
	}
	var b strings.Builder
	for i, c := range chunks {
		section := c.Section
		if section == "" {
			section = "Unknown"
		}
		fmt.Fprintf(&b, "[Chunk %d] - Section: %s, Page: %d\n%s\n---\n", i+1, section, c.Page, c.Text)
	}
	return b.String()
}

// UserPrompt builds the user message for an analysis or a chat question.
func UserPrompt(t models.AnalysisType, question string, chunks []models.RetrievedChunk) string {
	ctxText := FormatContext(chunks)
	if t == models.AnalysisChat {
		return fmt.Sprintf("User question: %s\n\nDocument context:\n%s\n"+
			"Answer the question from the document context above and cite specific clauses or sections where you can.",
			question, ctxText)
	}
	return fmt.Sprintf("Analyze the following legal document content and produce the %s analysis.\n\nDocument context:\n%s\n"+
		"Return the analysis as valid JSON in the format given in the system instructions.",
		t, ctxText)
}

// RepairPrompt asks the model to restate its previous answer in the schema of t.
func RepairPrompt(t models.AnalysisType, previous string, cause error) string {
	return fmt.Sprintf("Your previous answer could not be used (%v).\n\nPrevious answer:\n%s\n\n"+
		"Rewrite it as a single valid JSON object in exactly this format, with no other text:\n%s",
		cause, previous, schemas[t])
}
