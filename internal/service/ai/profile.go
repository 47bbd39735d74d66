package ai

import (
	"fmt"
	"strings"
)

// Params 是每个服务固定的生成参数，调用方不可修改。
type Params struct {
	Temperature      float32 `json:"temperature"`
	MaxTokens        int     `json:"maxTokens"`
	TopP             float32 `json:"topP"`
	PresencePenalty  float32 `json:"presencePenalty"`
	FrequencyPenalty float32 `json:"frequencyPenalty"`
}

// Profile describes one generation service: its fixed instruction, how user
// content is framed, and whether retrieved passages are injected.
type Profile struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Instruction string `json:"-"`
	// QueryTemplate wraps a single-text prompt; must contain one %s.
	QueryTemplate string `json:"-"`
	// ContextTemplate renders retrieved passages into the system message.
	ContextTemplate string `json:"-"`
	TopK            int    `json:"topK,omitempty"`
	Params          Params `json:"params"`
}

// UsesRetrieval reports whether the profile needs a Retriever.
func (p Profile) UsesRetrieval() bool {
	return p.TopK > 0
}

func (p Profile) frameQuery(query string) string {
	if p.QueryTemplate == "" {
		return query
	}
	return fmt.Sprintf(p.QueryTemplate, query)
}

func (p Profile) systemPrompt(passages []string) string {
	if !p.UsesRetrieval() || len(passages) == 0 {
		return p.Instruction
	}

	var builder strings.Builder
	builder.WriteString(p.Instruction)
	builder.WriteString("\n\n")
	builder.WriteString(fmt.Sprintf(p.ContextTemplate, strings.Join(passages, "\n---\n")))
	return builder.String()
}

var (
	JobDescription = Profile{
		Name:  "job-description",
		Title: "Job description writer",
		Instruction: `You write job descriptions from the tasks a hiring manager lists.
Structure every answer in three sections, each as bullet points:
Description:
- ...
Responsibilities:
- ...
Requirements:
- ...`,
		Params: Params{Temperature: 0, MaxTokens: 1024, TopP: 1},
	}

	ActionPlan = Profile{
		Name:  "action-plan",
		Title: "Student career action plan",
		Instruction: `You are a career assistant for students. Using the student's profile, CV, dream job,
dream project and career goal, produce a concrete step-by-step action plan for building that career.`,
		Params: Params{Temperature: 0, MaxTokens: 1024, TopP: 1},
	}

	CandidateSearch = Profile{
		Name:  "candidate-search",
		Title: "Candidate matcher",
		Instruction: `You help companies find suitable candidates for a job description.
List each suggested candidate with name, description, skills and experience,
choosing only from the candidates provided below.`,
		QueryTemplate:   "Show suitable candidates for this job: %s",
		ContextTemplate: "Candidates:\n%s",
		TopK:            1,
		Params:          Params{Temperature: 0.7, MaxTokens: 1024, TopP: 1, FrequencyPenalty: 0.1},
	}
)

// Catalog lists the built-in profiles.
func Catalog() []Profile {
	return []Profile{JobDescription, ActionPlan, CandidateSearch}
}

// LookupProfile finds a built-in profile by name.
func LookupProfile(name string) (Profile, bool) {
	for _, p := range Catalog() {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
