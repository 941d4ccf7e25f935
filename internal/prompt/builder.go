// Package prompt builds the grading prompt sent to the correction model.
//
// Build is a pure function of its inputs: the same student text, reference
// text, rubric and class level always produce the same prompt, which lets the
// grading flow be golden-tested without calling the model.
package prompt

import "strings"

const defaultRubric = "Notation standard sur 20 points"

// User-supplied text is fenced so rubric or OCR output containing section
// numbering or fence markers cannot masquerade as prompt structure. The
// model's five-section answer format is advisory; nothing downstream parses
// it structurally.
const fence = "```"

func fenced(s string) string {
	s = strings.ReplaceAll(s, fence, "'''")
	return fence + "\n" + strings.TrimSpace(s) + "\n" + fence
}

func sanitizeLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

// Build composes the grading prompt for one student copy.
func Build(studentText, referenceText, rubric, classLevel string) string {
	if strings.TrimSpace(rubric) == "" {
		rubric = defaultRubric
	}
	if strings.TrimSpace(referenceText) == "" {
		referenceText = "Aucun corrigé type fourni."
	}

	var b strings.Builder
	b.WriteString("En tant que professeur expérimenté, je vais t'aider à corriger cette copie d'élève.\n\n")

	b.WriteString("Contexte :\n")
	b.WriteString("- Niveau de la classe : " + sanitizeLine(classLevel) + "\n")
	b.WriteString("- Barème détaillé :\n")
	b.WriteString(fenced(rubric) + "\n\n")

	b.WriteString("Copie de l'élève (texte OCRisé) :\n")
	b.WriteString(fenced(studentText) + "\n\n")

	b.WriteString("Sujet parfait / Corrigé type :\n")
	b.WriteString(fenced(referenceText) + "\n\n")

	b.WriteString(`Instructions pour la correction :
1. Analyse détaillée de la copie
2. Identification des points forts et des erreurs
3. Suggestions d'amélioration constructives
4. Attribution des points selon le barème fourni
5. Commentaire général sur la copie

Format de réponse souhaité :
1. ANALYSE DÉTAILLÉE :
[Analyse point par point de la copie]

2. POINTS FORTS :
[Liste des éléments positifs]

3. POINTS À AMÉLIORER :
[Liste des erreurs avec explications]

4. NOTATION DÉTAILLÉE :
[Détail des points attribués selon le barème]

5. COMMENTAIRE GÉNÉRAL :
[Synthèse et encouragements]

Merci de fournir une correction détaillée et constructive.`)

	return b.String()
}
