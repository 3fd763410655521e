// Package llm provides language model collaborators for reconciliation: a
// categorizer that predicts the ledger category of a statement line and an
// explainer that narrates a proposed match. OpenAI and Anthropic are
// supported, with retry, rate limiting and response caching.
package llm
