package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// ChainResponse represents a single reasoning chain proposed by the LLM.
type ChainResponse struct {
	Name       string   `json:"name"`
	MemoryIDs  []string `json:"memory_ids"`
	Rationale  string   `json:"rationale"`
	Confidence float64  `json:"confidence"`
}

// ChainExtractionResponse represents the complete chain proposal response.
type ChainExtractionResponse struct {
	Chains []ChainResponse `json:"chains"`
}

// ContradictionResponse represents a single detected contradiction.
type ContradictionResponse struct {
	MemoryID1   string  `json:"memory_id_1"`
	MemoryID2   string  `json:"memory_id_2"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

// ContradictionExtractionResponse represents the complete contradiction response.
type ContradictionExtractionResponse struct {
	Contradictions []ContradictionResponse `json:"contradictions"`
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	// Find the matching closing brace
	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// ParseChainResponse parses chain proposal JSON and filters out invalid entries.
// Chains with malformed membership or out-of-range confidence are skipped rather
// than failing the entire batch. Only returns an error if the JSON itself is malformed.
func ParseChainResponse(jsonStr string) ([]ChainResponse, error) {
	cleanJSON := extractJSON(jsonStr)

	var response ChainExtractionResponse
	if err := json.Unmarshal([]byte(cleanJSON), &response); err != nil {
		return nil, fmt.Errorf("failed to parse chain JSON: %w", err)
	}

	var valid []ChainResponse
	for _, chain := range response.Chains {
		if len(chain.MemoryIDs) < 2 || len(chain.MemoryIDs) > 5 {
			log.Printf("response_parser: skipping chain %q with %d memories (need 2-5)", chain.Name, len(chain.MemoryIDs))
			continue
		}
		if chain.Confidence < 0.0 || chain.Confidence > 1.0 {
			log.Printf("response_parser: skipping chain %q with invalid confidence %f", chain.Name, chain.Confidence)
			continue
		}
		valid = append(valid, chain)
	}
	return valid, nil
}

// ParseContradictionResponse parses contradiction detection JSON and filters out
// invalid entries. A contradiction must reference two distinct memory IDs and
// carry a confidence in [0, 1]. Only returns an error if the JSON itself is malformed.
func ParseContradictionResponse(jsonStr string) ([]ContradictionResponse, error) {
	cleanJSON := extractJSON(jsonStr)

	var response ContradictionExtractionResponse
	if err := json.Unmarshal([]byte(cleanJSON), &response); err != nil {
		return nil, fmt.Errorf("failed to parse contradiction JSON: %w", err)
	}

	var valid []ContradictionResponse
	for _, c := range response.Contradictions {
		if c.MemoryID1 == "" || c.MemoryID2 == "" || c.MemoryID1 == c.MemoryID2 {
			log.Printf("response_parser: skipping contradiction with invalid memory pair (%q, %q)", c.MemoryID1, c.MemoryID2)
			continue
		}
		if c.Confidence < 0.0 || c.Confidence > 1.0 {
			log.Printf("response_parser: skipping contradiction (%q, %q) with invalid confidence %f", c.MemoryID1, c.MemoryID2, c.Confidence)
			continue
		}
		valid = append(valid, c)
	}
	return valid, nil
}
