package oracle

import (
	"fmt"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

// ExtractPrompt instructs the oracle to reconstruct the questions printed on
// the attached pages.
const ExtractPrompt = `You are reading scanned or digital exam pages. Reconstruct every question exactly as printed.

Rules:
1. Copy question text and options word for word. Never invent, paraphrase, or complete missing content. Use null for anything you cannot read.
2. Decide the question type:
   - "single": one correct option among A-D
   - "multiple": more than one correct option, or the paper says "one or more"
   - "numerical": the answer is a number to be typed in; there are no options
3. A question that starts near the bottom of one page and continues on the next must be emitted once, with "crossPage": true.
4. If a question refers to a figure, set "diagramPage" to the page number that shows it. If the figure belongs to one option only, also set "diagramOption" to that letter.
5. Write mathematics as LaTeX inside the JSON strings. Every backslash must be escaped, so \frac is written as \\frac.
6. Use <br> for line breaks inside text. Do not emit raw newlines inside strings.
7. If several questions share a reading passage or data table, copy it into "passageContent" for each of them.
8. Fill "correctAnswer" only when the page itself prints the answer. Otherwise use null.
9. The extracted text lines, image list, spatial relations and candidate questions below are hints from a layout analyzer. Image IDs such as IMG_3 refer to that list. Prefer what you see on the page when the hints disagree.
10. If the candidate list holds at least one question, your answer must contain at least one question. Never return an empty "questions" list for pages that have candidates.

Answer with one JSON object and nothing else:
{
  "title": "exam title or null",
  "description": "short description or null",
  "questions": [
    {
      "id": 1,
      "type": "single",
      "question": "question text",
      "diagramPage": null,
      "diagramOption": null,
      "options": {"A": "...", "B": "...", "C": "...", "D": "..."},
      "correctAnswer": null,
      "marks": 4,
      "negativeMarks": 1,
      "crossPage": false,
      "passageContent": null
    }
  ]
}
For "multiple" questions correctAnswer is a list of letters. For "numerical" questions options is null and correctAnswer is {"min": x, "max": y}.`

// GeneratePrompt instructs the oracle to write new practice questions from
// study material on the attached pages.
const GeneratePrompt = `The attached pages are study material. Write original multiple choice questions that test the material.

Rules:
1. Each question has four options A-D and exactly one correct answer.
2. Write mathematics in plain text with Unicode symbols (x², √2, π, ≤). Do not use LaTeX.
3. Cover the whole material. Do not copy sentences verbatim as questions.
4. Also write short revision notes that summarize the key facts.

Answer with one JSON object and nothing else:
{
  "title": "topic of the material",
  "description": "one sentence description",
  "revision_notes": "key facts as short paragraphs separated by <br>",
  "questions": [
    {
      "id": 1,
      "type": "single",
      "question": "question text",
      "options": {"A": "...", "B": "...", "C": "...", "D": "..."},
      "correctAnswer": "B",
      "marks": 1,
      "negativeMarks": 0
    }
  ]
}`

// AnswerKeyPrompt instructs the oracle to read an answer key
const AnswerKeyPrompt = `The attached pages are the answer key of an exam. List every question number with its answer.

Answers are one of:
- a single letter such as "B"
- a list of letters such as ["A", "C"] when several options are correct
- a number or {"min": x, "max": y} for numerical questions

Answer with one JSON object and nothing else:
{"answer_key": [{"question_number": 1, "answer": "B"}]}`

// PromptFor returns the instruction document for a mode
func PromptFor(mode models.Mode) string {
	if mode == models.ModeGenerate {
		return GeneratePrompt
	}
	return ExtractPrompt
}

// PageLabel introduces one page of a batch
func PageLabel(page, total int) string {
	return fmt.Sprintf("\n--- PAGE %d of %d ---\n", page, total)
}

// AnswerKeyPageLabel introduces one answer-key page
func AnswerKeyPageLabel(page int) string {
	return fmt.Sprintf("\n--- ANSWER KEY PAGE %d ---\n", page)
}
