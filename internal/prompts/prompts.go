package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Question Generation Prompts
// ============================================================================

// QuestionGenerationSystemPrompt defines the role for bulk question
// generation. The model must answer with JSON only.
const QuestionGenerationSystemPrompt = `You are an experienced exam author who writes multiple-choice questions for students.
You always answer with a single JSON document and nothing else: no markdown fences, no commentary.`

// questionSchema is the JSON shape every generated question must follow.
//
//	{
//	  "questions": [
//	    {
//	      "question": "...?",
//	      "options": ["A", "B", "C", "D"],
//	      "correctAnswer": "one of options, verbatim",
//	      "explanation": "why the answer is correct",
//	      "difficulty": "easy|medium|hard",
//	      "tags": ["concept"],
//	      "qualityScore": 0.7-1.0
//	    }
//	  ]
//	}
const questionSchema = `{
  "questions": [
    {
      "question": "The question text, ending with a question mark",
      "options": ["option 1", "option 2", "option 3", "option 4"],
      "correctAnswer": "the correct option, copied verbatim from options",
      "explanation": "A short explanation of why the answer is correct",
      "difficulty": "easy | medium | hard",
      "tags": ["concept tag"],
      "qualityScore": 0.85
    }
  ]
}`

// QuestionGenerationParams fills the user prompt for one chapter.
type QuestionGenerationParams struct {
	SubjectName string
	ChapterName string
	Count       int
	// Difficulty is empty for a mix of difficulties.
	Difficulty string
	// SourceText is optional reference material the questions must be based on.
	SourceText string
}

// QuestionGenerationPrompt builds the user prompt for one chapter.
func QuestionGenerationPrompt(p QuestionGenerationParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate %d multiple-choice questions", p.Count)
	if p.SubjectName != "" {
		fmt.Fprintf(&b, " for the subject %q", p.SubjectName)
	}
	fmt.Fprintf(&b, ", chapter %q.\n", p.ChapterName)

	if p.Difficulty != "" {
		fmt.Fprintf(&b, "Every question must be of %s difficulty.\n", p.Difficulty)
	} else {
		b.WriteString("Mix easy, medium and hard questions.\n")
	}

	if p.SourceText != "" {
		b.WriteString("\nBase the questions only on the following source material:\n")
		b.WriteString("<source>\n")
		b.WriteString(p.SourceText)
		b.WriteString("\n</source>\n")
	}

	b.WriteString(`
Requirements:
- Each question has exactly 4 distinct options.
- correctAnswer is exactly one of the options.
- Include an explanation of at least one full sentence.
- Include 1-3 concept tags.
- Rate your own question with a qualityScore between 0.7 and 1.0.
- Do not repeat questions.

Respond with JSON in this format:
`)
	b.WriteString(questionSchema)
	return b.String()
}
