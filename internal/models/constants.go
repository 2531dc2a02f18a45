package models

const (
	ContextSeparator = "\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	ErrorAnswerPrefix = "Error generating answer: "

	RoleUser      = "user"
	RoleAssistant = "assistant"

	DecisionFetch = "FETCH_DOCUMENTS"
	DecisionReuse = "USE_CHAT_CONTEXT"
)

var (
	ContextPromptTemplate = `%sBased on the context below, answer the question concisely.

Context:
%s
%s
Question: %s

Answer briefly (max 100 words):`

	NoContextPromptTemplate = `%s%sAnswer briefly (max 50 words): %s`

	SummaryPromptTemplate = "Please provide a concise summary of the following text:\n\n%s"

	DecisionPromptTemplate = `You decide whether a question needs a fresh document search.

Recent conversation:
%s
New question: %s

Reply with exactly one word: FETCH_DOCUMENTS if the question needs new information from the documents, or USE_CHAT_CONTEXT if it can be answered from the conversation above.`
)
