package llm

// DefaultPrompt asks for one table as bare CSV.
const DefaultPrompt = "You are given an image that contains tabular data. " +
	"Identify sensible column names and extract the table. " +
	"Return ONLY raw CSV with a header row and subsequent data rows."
