package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// taskBlockRegex finds <TASK-i>...</TASK-i> blocks in a task-generator
// agent's output. Grounded on the teacher's own plan-parsing regex
// (instance/orchestrator/orchestrator.go's parsePlanOutput), extended with
// an optional dependency field the teacher's single-worker orchestrator had
// no need for.
var taskBlockRegex = regexp.MustCompile(`(?s)<TASK-\d+>(.*?)</TASK-\d+>`)

// taskSpec is one parsed task-generation block: a name, its dependencies by
// name (resolved against sibling specs' names, not yet allocated TaskIDs),
// and the prompt to hand the implementing agent.
type taskSpec struct {
	Name         string
	Dependencies []string
	Description  string
}

// parseTaskSpecs parses task-generator output into specs. Each block is
// either the teacher's original two-field "name | description" form, or a
// three-field "name | deps | description" form where deps is a
// comma-separated list of sibling task names or the literal "none".
// Malformed or unparseable blocks are skipped rather than rejecting the
// whole output, mirroring the teacher's tolerance of partial plan output.
func parseTaskSpecs(output string) []taskSpec {
	var specs []taskSpec
	for _, match := range taskBlockRegex.FindAllStringSubmatch(output, -1) {
		content := strings.TrimSpace(match[1])
		parts := strings.SplitN(content, "|", 3)
		if len(parts) < 2 {
			continue
		}

		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}

		var deps []string
		description := strings.TrimSpace(parts[1])
		if len(parts) == 3 {
			description = strings.TrimSpace(parts[2])
			depsField := strings.TrimSpace(parts[1])
			if depsField != "" && !strings.EqualFold(depsField, "none") {
				for _, d := range strings.Split(depsField, ",") {
					if d = strings.TrimSpace(d); d != "" {
						deps = append(deps, d)
					}
				}
			}
		}

		specs = append(specs, taskSpec{Name: name, Dependencies: deps, Description: description})
	}
	return specs
}

func planningPrompt(userPrompt string) string {
	return fmt.Sprintf(`You are a project orchestrator. Your goal is to implement: %s

Break this goal down into the major pieces of work involved. Describe the overall approach and the order constraints between pieces of work. Do not write code yet.`, userPrompt)
}

func taskGenerationPrompt(planningOutput string) string {
	return fmt.Sprintf(`Here is a plan for a coding task:

%s

Break this plan down into 2-8 independent, delegatable tasks. For each task, name any sibling tasks it depends on by name (or "none").

Respond exactly in the following format, with each task on its own line:
<TASK-i>
Task Name | dependency names, comma-separated, or none | Detailed instructions for the worker to complete this specific task...
</TASK-i>
`, planningOutput)
}

func documentationPrompt(prompt string) string {
	return fmt.Sprintf(`The following goal has been implemented across several merged changes: %s

Write or update documentation describing what changed.`, prompt)
}
