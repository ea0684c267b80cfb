package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"learnhub/internal/models"
)

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage = "English"

var exampleQuestion = map[string]any{
	"questions": []map[string]any{{
		"question":    "Which of the following is the correct translation of house in Spanish?",
		"options":     []string{"Casa", "Maison", "Haus", "Huis"},
		"answer":      0,
		"explanation": "Casa is the Spanish word for house.",
	}},
}

var fieldSchema = map[string]string{
	"question":    "The question",
	"options":     "An array of 4 strings representing the choices",
	"answer":      "An integer in range [0, 3], corresponding to the index of the correct answer in the options array",
	"explanation": "Explain why that answer is correct",
}

const rules = `QUESTION GENERATION RULES:

1. QUANTITY: generate EXACTLY the requested number of questions.
2. NO EXTERNAL REFERENCES: never write "according to the text", "based on the document", "as shown in the diagram" or an equivalent phrase in any language. Each question must stand on its own and carry the context it needs.
3. CONTENT SELECTION: ignore covers, prefaces, acknowledgments and publication details. Use only the main instructional content and spread questions across it.
4. FORMULATION: start directly with the concept being tested. Use LaTeX with double backslashes for mathematics, e.g. "$\\pi r^2$". Keep technical terms in their original language.
5. FACT CHECKING: every question and answer must be verifiable from the content. Do not extrapolate. Skip anything ambiguous.
6. DIFFICULTY: EASY tests recall and understanding, MEDIUM tests application and analysis, HARD tests evaluation and synthesis. Distractors must be plausible and of similar length to the correct option.
7. ANSWER ACCURACY: the answer index must match the explanation.
8. ESCAPING: inside JSON strings write \" for a double quote and \\ for a backslash.`

const summaryPrompt = `Can you provide a comprehensive summary of these given images? The summary should cover all the key points and main ideas presented in the original text, while also condensing the information into a concise and easy-to-understand format. Please ensure that the summary includes relevant details and examples that support the main ideas, while avoiding any unnecessary information or repetition. The length of the summary should be appropriate for the length and complexity of the original text, providing a clear and accurate overview without omitting any important information.
Just return the summary without any other text.`

// PromptBuilder renders the prompts sent to the LLM. It is built once at
// startup and is safe for concurrent use.
type PromptBuilder struct {
	system string
}

func NewPromptBuilder() *PromptBuilder {
	schema, _ := json.MarshalIndent(fieldSchema, "", "  ")
	example, _ := json.MarshalIndent(exampleQuestion, "", "  ")

	var b strings.Builder
	b.WriteString("You are an assistant specialized in generating challenging exam-style questions and answers. ")
	b.WriteString("Your response must only be a JSON object with the following property:\n")
	b.WriteString(`"questions": an array of JSON objects, each representing one question with these properties:`)
	b.WriteString("\n\n")
	b.Write(schema)
	b.WriteString("\n\nFor example, your response should look like this:\n\n")
	b.Write(example)
	b.WriteString("\n\n")
	b.WriteString(rules)
	return &PromptBuilder{system: b.String()}
}

// System returns the shared instruction block that prefixes every
// question prompt.
func (p *PromptBuilder) System() string { return p.system }

func (p *PromptBuilder) Text(language string, count int, difficulty models.Difficulty, content string) string {
	return fmt.Sprintf(`%s

Now generate %d insightful questions based on the following content that test understanding of key concepts or important details. The questions should be of %s difficulty level:

<Begin Document>
%s
<End Document>
%s`, p.system, count, difficulty, content, languageClause(language))
}

func (p *PromptBuilder) Images(language string, count int, difficulty models.Difficulty) string {
	return fmt.Sprintf(`%s

Now read carefully the contents written on these images, then generate %d insightful questions that test understanding of key concepts or important details. The questions should be of %s difficulty level.
%s`, p.system, count, difficulty, languageClause(language))
}

func (p *PromptBuilder) File(language string, count int, difficulty models.Difficulty) string {
	return fmt.Sprintf(`%s

Now read carefully the contents written on this document, then generate %d insightful questions that test understanding of key concepts or important details. The questions should be of %s difficulty level.
%s`, p.system, count, difficulty, languageClause(language))
}

func (p *PromptBuilder) Summary() string { return summaryPrompt }

// Title asks for a short quiz title given a sample of its questions.
func (p *PromptBuilder) Title(language string, questions []string) string {
	return fmt.Sprintf(`Write a short, descriptive title (at most 10 words) for a quiz containing the following questions. The title must be in %s. Return only the title, without quotes or any other text.

%s`, orDefault(language), bulletList(questions))
}

// Categories asks the model to choose up to max categories from a fixed list.
func (p *PromptBuilder) Categories(questions []string, categories []string, max int) string {
	return fmt.Sprintf(`Choose at most %d categories from the list below that best describe a quiz containing the following questions. Return only a JSON array of the chosen category names exactly as written in the list, e.g. ["%s"].

Categories:
%s

Questions:
%s`, max, categories[0], bulletList(categories), bulletList(questions))
}

// Answer asks the model to answer a question from retrieved passages.
func (p *PromptBuilder) Answer(question string, passages []string) string {
	var b strings.Builder
	for i, passage := range passages {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, passage)
	}
	return fmt.Sprintf(`Answer the question using only the numbered passages below. Cite the passages you used as [n]. If the passages do not contain the answer, say that you do not know.

Passages:
%s
Question: %s`, b.String(), question)
}

func languageClause(language string) string {
	language = orDefault(language)
	return fmt.Sprintf("\nThe generated questions and answers must be in %s. However, your response must still follow the JSON format provided before: while the values are in %s, the keys must be exactly the same as given before, in English.\n", language, language)
}

func orDefault(language string) string {
	if strings.TrimSpace(language) == "" {
		return DefaultLanguage
	}
	return language
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteByte('\n')
	}
	return b.String()
}
