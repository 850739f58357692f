package llm

import (
	"fmt"
	"strings"
)

// typeSummaryInstructions maps memory types to how their clusters should be
// condensed. Types without an entry fall back to a generic instruction.
var typeSummaryInstructions = map[string]string{
	"observation": "Condense repeated observations into a single general statement of what was observed.",
	"decision":    "Capture the decisions made and the reasons behind them.",
	"feedback":    "Distill the recurring feedback into the underlying preference or correction.",
	"interaction": "Summarize what happened across these interactions and any outcomes.",
	"tactic":      "Describe the shared approach or technique these memories demonstrate.",
	"preference":  "State the user preference these memories collectively establish.",
	"insight":     "Merge these insights into a single higher-level conclusion.",
}

// SummarizationPrompt generates a prompt that condenses a cluster of
// same-type memories into a single summary of at most maxLength characters.
func SummarizationPrompt(memoryType string, contents []string, maxLength int) string {
	instruction, ok := typeSummaryInstructions[memoryType]
	if !ok {
		instruction = "Condense these related memories into a single statement preserving the essential information."
	}

	var sb strings.Builder
	for i, content := range contents {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, content)
	}

	return fmt.Sprintf(`TASK: Summarize related memories of type %q.
%s
OUTPUT: Plain text only. At most %d characters. NO preamble. NO markdown.

MEMORIES:
%s
SUMMARY:`, memoryType, instruction, maxLength, sb.String())
}

// ChainProposalPrompt generates a strict JSON-only prompt asking the LLM to
// group candidate memories into reasoning chains. Each candidate line carries
// the memory ID so the response can reference memories directly. Known
// relationships between the candidates are listed as hints.
func ChainProposalPrompt(query string, candidates, relationships []string) string {
	relSection := "none"
	if len(relationships) > 0 {
		relSection = strings.Join(relationships, "\n")
	}
	return fmt.Sprintf(`TASK: Group memories into reasoning chains relevant to a query.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

QUERY: %s

MEMORIES (format: id | content):
%s

KNOWN RELATIONSHIPS (format: source -type-> target):
%s

RULES:
1. Propose at most 3 chains.
2. Each chain contains 2 to 5 memory IDs that together support one line of reasoning.
3. Only use IDs from the list above.
4. Give each chain a short name, a one-sentence rationale, and a confidence 0.0-1.0.

REQUIRED JSON STRUCTURE:
{
  "chains": [
    {"name":"short name","memory_ids":["mem:abc","mem:def"],"rationale":"why these connect","confidence":0.85}
  ]
}

If no coherent chains exist, return {"chains":[]}.`, query, strings.Join(candidates, "\n"), relSection)
}

// ContradictionPrompt generates a strict JSON-only prompt asking the LLM to
// find pairs of memories that contradict each other.
func ContradictionPrompt(candidates []string) string {
	return fmt.Sprintf(`TASK: Find pairs of memories that contradict each other.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

MEMORIES (format: id | content):
%s

RULES:
1. Report a pair only when the two memories cannot both be true.
2. Only use IDs from the list above.
3. Give each pair a one-sentence explanation and a confidence 0.0-1.0.

REQUIRED JSON STRUCTURE:
{
  "contradictions": [
    {"memory_id_1":"mem:abc","memory_id_2":"mem:def","explanation":"why they conflict","confidence":0.9}
  ]
}

If no contradictions exist, return {"contradictions":[]}.`, strings.Join(candidates, "\n"))
}

// CompressionPrompt generates a prompt that shortens a single memory's content
// while preserving the facts a downstream agent would need.
func CompressionPrompt(content string, targetTokens int) string {
	return fmt.Sprintf(`TASK: Compress the following memory content.
OUTPUT: Plain text only. Roughly %d tokens or fewer. NO preamble. NO markdown.
Preserve concrete facts, names, and outcomes. Drop filler.

CONTENT:
%s

COMPRESSED:`, targetTokens, content)
}
