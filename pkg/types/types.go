// Package types defines the core data structures for the Engram memory system:
// memories, relationships, access records, assembled contexts, and memory
// chains, together with the enumerated type vocabularies and their validation.
package types

// Memory type constants - classify the purpose/nature of a memory
const (
	MemoryTypeObservation = "observation" // Facts observed by an agent
	MemoryTypeDecision    = "decision"    // Important choices or decisions made
	MemoryTypeFeedback    = "feedback"    // Explicit user feedback
	MemoryTypeInteraction = "interaction" // Records of agent/user exchanges
	MemoryTypeTactic      = "tactic"      // Approaches that worked (or didn't)
	MemoryTypePreference  = "preference"  // Stated or inferred user preferences
	MemoryTypeInsight     = "insight"     // Synthesized conclusions (summaries, chains)
)

// ValidMemoryTypes is a slice of all valid memory types for validation
var ValidMemoryTypes = []string{
	MemoryTypeObservation,
	MemoryTypeDecision,
	MemoryTypeFeedback,
	MemoryTypeInteraction,
	MemoryTypeTactic,
	MemoryTypePreference,
	MemoryTypeInsight,
}

// IsValidMemoryType checks if the given memory type is valid
func IsValidMemoryType(memoryType string) bool {
	for _, validType := range ValidMemoryTypes {
		if validType == memoryType {
			return true
		}
	}
	return false
}

// Relationship type constants - directed, typed edges between memories
const (
	RelCaused      = "caused"      // Source memory caused the target
	RelRelatedTo   = "related_to"  // Generic association (often bidirectional in practice)
	RelContradicts = "contradicts" // Source logically conflicts with target
	RelSupports    = "supports"    // Source reinforces target
	RelFollows     = "follows"     // Source comes after target in a chain
	RelPrecedes    = "precedes"    // Source comes before target in a chain
	RelSummarizes  = "summarizes"  // Source is a summary of target
)

// ValidRelationshipTypes is a slice of all valid relationship types for validation
var ValidRelationshipTypes = []string{
	RelCaused,
	RelRelatedTo,
	RelContradicts,
	RelSupports,
	RelFollows,
	RelPrecedes,
	RelSummarizes,
}

// IsValidRelationshipType checks if the given relationship type is valid
func IsValidRelationshipType(relType string) bool {
	for _, validType := range ValidRelationshipTypes {
		if validType == relType {
			return true
		}
	}
	return false
}

// Access type constants - classify how a memory was used
const (
	AccessRetrieve = "retrieve" // Fetched directly by ID
	AccessSearch   = "search"   // Surfaced by a search query
	AccessAnalyze  = "analyze"  // Read by a batch pass (summarizer, chain reasoner)
	AccessApply    = "apply"    // Selected into an assembled context
)

// ValidAccessTypes is a slice of all valid access types for validation
var ValidAccessTypes = []string{
	AccessRetrieve,
	AccessSearch,
	AccessAnalyze,
	AccessApply,
}

// IsValidAccessType checks if the given access type is valid
func IsValidAccessType(accessType string) bool {
	for _, validType := range ValidAccessTypes {
		if validType == accessType {
			return true
		}
	}
	return false
}

// Access outcome constants
const (
	OutcomePositive = "positive"
	OutcomeNegative = "negative"
)

// DefaultTypeImportance returns the fallback importance for a memory type,
// used when no explicit importance is present in metadata.
func DefaultTypeImportance(memoryType string) float64 {
	switch memoryType {
	case MemoryTypeInsight:
		return 0.9
	case MemoryTypeDecision:
		return 0.8
	case MemoryTypeFeedback, MemoryTypePreference:
		return 0.7
	case MemoryTypeTactic:
		return 0.6
	case MemoryTypeObservation:
		return 0.5
	case MemoryTypeInteraction:
		return 0.4
	default:
		return 0.5
	}
}
