package pipeline

import (
	"fmt"
	"strings"
)

func expertIn(domain string) string {
	if domain == "" {
		return "a domain expert"
	}
	return "an expert in " + domain
}

func decomposeSystemPrompt(domain string, limit int) string {
	scope := "the subject of the question"
	if domain != "" {
		scope = domain
	}
	return fmt.Sprintf(`You are %s who excels at breaking complex questions down into simpler, manageable sub-questions.

Break the question into %d or fewer sub-questions that:
1. Are simpler and more focused than the original question
2. Build on each other logically, earlier answers feeding later questions
3. Together provide what is needed to answer the original question
4. Stay specific to %s

Format the response as a numbered list:
1. [First sub-question]
2. [Second sub-question]
...

Respond with ONLY the numbered list of sub-questions.`, expertIn(domain), limit, scope)
}

func decomposeUserPrompt(query string) string {
	return "Break down this complex question: " + query
}

func seededDecomposeSystemPrompt(domain string, limit int) string {
	scope := "the subject of the question"
	if domain != "" {
		scope = domain
	}
	return fmt.Sprintf(`You are %s who excels at breaking complex questions down into simpler, manageable sub-questions.

Given a complex question and the available context (content documents and worked examples),
break it into %d or fewer sub-questions that:
1. Are simpler and more focused than the original question
2. Build on each other logically
3. Make effective use of the available content and examples
4. Together provide what is needed to answer the original question
5. Stay specific to %s

Format the response as a numbered list:
1. [First sub-question]
2. [Second sub-question]
...

Respond with ONLY the numbered list of sub-questions.`, expertIn(domain), limit, scope)
}

func seededDecomposeUserPrompt(query, seed string) string {
	return "Complex Question: " + query + "\n\nAvailable Context:\n" + seed +
		"\n\nBreak down this question into focused sub-questions that make use of the available context."
}

func synthesisSystemPrompt(domain string) string {
	return "You are " + expertIn(domain) + ` who excels at synthesizing information into comprehensive answers.

From the sub-question answers and retrieved context, write a well-structured final answer that:
1. Combines the findings of all sub-questions
2. Addresses the original question directly and completely
3. Is technically accurate
4. Shows how the sub-answers connect into the complete solution

Structure the response with clear reasoning and a conclusion.`
}

func synthesisUserPrompt(query, transcript string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Original Complex Question: ")
	b.WriteString(query)
	b.WriteString("\n\nSequential sub-questions and their answers:\n")
	b.WriteString(transcript)
	if len(contexts) > 0 {
		b.WriteString("\nRetrieved context from all searches:\n")
		b.WriteString(strings.Join(contexts, "\n\n"))
		b.WriteString("\n")
	}
	b.WriteString("\nProvide a comprehensive final answer to the original question.")
	return b.String()
}
