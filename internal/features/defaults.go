package features

// Built-in feature ids
const (
	SocraticSensei   = "socratic_sensei"
	Articulation     = "articulation"
	Planning         = "planning"
	CodeReview       = "code_review"
	RubricEvaluation = "rubric_evaluation"
	VoiceInput       = "voice_input"
)

var builtin = []Feature{
	{
		ID:          SocraticSensei,
		Name:        "Socratic Sensei",
		Description: "Guided Socratic chat about a submission",
		RunNames:    []string{"socratic_chat_start", "socratic_chat_message", "socratic_chat_end"},
	},
	{
		ID:          Articulation,
		Name:        "Articulation Harness",
		Description: "Learner explains their solution topic by topic",
		RunNames:    []string{"articulation_harness_orchestration", "articulation_message_process", "articulation_voice_process"},
		CrossTrace:  true,
	},
	{
		ID:          Planning,
		Name:        "Planning Harness",
		Description: "Learner plans an approach before coding",
		RunNames:    []string{"planning_harness_orchestration", "planning_message_process"},
		CrossTrace:  true,
	},
	{
		ID:          CodeReview,
		Name:        "Code Review",
		Description: "Agentic review of a pull request submission",
		RunNames:    []string{"orchestrate_review", "run_full_review"},
	},
	{
		ID:          RubricEvaluation,
		Name:        "Rubric Evaluation",
		Description: "Per-item rubric grading of learner answers",
		RunNames:    []string{"evaluate_rubric_item"},
	},
	{
		ID:          VoiceInput,
		Name:        "Voice Input",
		Description: "Whisper transcription of spoken answers",
		RunNames:    []string{"whisper_transcribe"},
	},
}

// Default returns a registry holding the built-in features
func Default() *Registry {
	r := NewRegistry()
	for _, f := range builtin {
		// Built-ins are valid by construction
		_ = r.Register(f)
	}
	return r
}
