package types

// MemoryChain is an LLM-proposed causal/logical sequence of memories with a
// natural-language rationale and a confidence score. Accepted chains are
// persisted as follows relationships between consecutive members plus a
// synthesized insight memory linked related_to every member.
type MemoryChain struct {
	// Name is a short label for the chain.
	Name string `json:"name"`

	// MemoryIDs are the chain members in order (2..maxChainLength).
	MemoryIDs []string `json:"memory_ids"`

	// Rationale explains the causal or logical connection.
	Rationale string `json:"rationale"`

	// Confidence is the model's confidence in the chain (0.0-1.0).
	Confidence float64 `json:"confidence"`
}

// Contradiction is an LLM-identified pair of memories whose content logically
// conflicts.
type Contradiction struct {
	MemoryID1   string  `json:"memory_id_1"`
	MemoryID2   string  `json:"memory_id_2"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}
