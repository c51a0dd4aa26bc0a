package ollama

import "fmt"

func buildAnswerPrompt(question, contextText string) string {
	if contextText == "" {
		contextText = "(no relevant documentation found)"
	}

	return fmt.Sprintf(`You are a support assistant for the Bisq decentralized exchange.
Answer the user's question only from the documentation below.
Prefer Bisq 2 guidance unless the question is explicitly about Bisq 1.
If the documentation is insufficient, say so directly instead of guessing.

Question:
%s

Documentation:
%s
`, question, contextText)
}
