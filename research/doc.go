// Package research implements the deep-research orchestrator's control
// plane: the iterative plan→search→reflect loop, the multi-provider search
// dispatcher with fallback and deduplication, and the source-quality
// scoring and filtering pipeline that gates what reaches synthesis.
//
// The package owns no HTTP surface, no persistent storage, and no prompt
// text; those are collaborators (see package api and the llm.Provider
// contract) with only their interfaces specified here.
package research
