package crew

import (
	"strings"
)

// TopicPlaceholder marks where an Instruction takes the topic
const TopicPlaceholder = "{topic}"

// Role is one agent of the crew. Roles run in order and each sees the
// outputs of the roles before it.
type Role struct {
	Name         string
	SystemPrompt string

	// Instruction is the task description. Every TopicPlaceholder is
	// replaced by the topic; without one the topic is appended.
	Instruction string
}

// DefaultRoles returns the planner, researcher, writer and reviewer crew
func DefaultRoles() []Role {
	return []Role{
		{
			Name: "planner",
			SystemPrompt: "You are the workshop planner. Break ambiguous goals into " +
				"concrete milestones covering research, authoring and review.",
			Instruction: "Produce a milestone-driven plan for a workshop on: {topic}",
		},
		{
			Name: "researcher",
			SystemPrompt: "You are the workshop researcher. Gather background, " +
				"examples and deployment tips that support the plan.",
			Instruction: "Research the material needed to deliver the plan for: {topic}",
		},
		{
			Name: "writer",
			SystemPrompt: "You are the workshop writer. Turn the plan and research " +
				"into clear, hands-on workshop content.",
			Instruction: "Write the workshop content for: {topic}",
		},
		{
			Name: "reviewer",
			SystemPrompt: "You are the quality reviewer. Audit the draft for accuracy " +
				"and completeness, then return the final polished version.",
			Instruction: "Review the draft for {topic} and return the final version.",
		},
	}
}

// writerRole names the role whose output is reported as the crew's output
const writerRole = "writer"

func (r Role) prompt(topic string, previous []TaskOutput) string {
	var b strings.Builder
	b.WriteString(r.instruction(topic))
	for _, p := range previous {
		b.WriteString("\n\n## ")
		b.WriteString(p.Role)
		b.WriteString(" output\n")
		b.WriteString(p.Output)
	}
	return b.String()
}

func (r Role) instruction(topic string) string {
	if !strings.Contains(r.Instruction, TopicPlaceholder) {
		return strings.TrimSpace(r.Instruction + "\n\nTopic: " + topic)
	}
	return strings.ReplaceAll(r.Instruction, TopicPlaceholder, topic)
}
