package assistant

// Defaults for the question answering collaborator.
const (
	// DefaultModelName is the default Gemini model used for answers.
	DefaultModelName = "gemini-2.5-flash"

	// SourceGemini marks answers produced by the model.
	SourceGemini = "gemini"

	// SourceAnalysis marks answers computed from the upload analysis.
	SourceAnalysis = "analysis"

	// maxSampleRecords caps how many rows are sent to the model.
	maxSampleRecords = 50
)
