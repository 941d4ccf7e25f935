// Package docgen renders graded feedback as a Word document.
package docgen

import (
	"bytes"
	"fmt"

	"baliance.com/gooxml/document"
	"baliance.com/gooxml/measurement"
)

// Feedback is written as one run at 12pt, matching the delivered format.
const feedbackFontSize = 12 * measurement.Point

// DocxRenderer produces a single-section .docx buffer from feedback text.
// Rendering is deterministic given its input.
type DocxRenderer struct{}

func NewDocxRenderer() *DocxRenderer {
	return &DocxRenderer{}
}

// Render encodes the feedback text into a .docx document.
func (r *DocxRenderer) Render(feedbackText string) ([]byte, error) {
	doc := document.New()

	para := doc.AddParagraph()
	run := para.AddRun()
	run.Properties().SetSize(feedbackFontSize)
	run.AddText(feedbackText)

	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}
