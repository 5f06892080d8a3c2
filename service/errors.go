package service

import "errors"

// Failure classes of the query pipeline. Handlers map these to response
// codes; everything else surfaces as a generic pipeline failure.
var (
	// ErrNoDocuments signals an empty corpus: the staging directory held no
	// loadable documents. Distinct from an indexing failure and user-visible.
	ErrNoDocuments = errors.New("no readable documents found")

	// ErrIndexingFailed covers embedding and index-build failures while
	// constructing the ephemeral document index.
	ErrIndexingFailed = errors.New("failed to build document index")

	// ErrRetrievalFailed covers similarity-search failures against either
	// retrieval source.
	ErrRetrievalFailed = errors.New("failed to retrieve context")

	// ErrGenerationFailed covers model-invocation failures. There is no
	// retry and no fallback model.
	ErrGenerationFailed = errors.New("failed to generate answer")
)
