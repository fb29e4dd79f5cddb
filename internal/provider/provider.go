// Package provider defines the capability contract for pulling
// conversation history out of an upstream LLM vendor, plus the concrete
// adapters. Adapter calls never mutate shared state; each call is
// independent and safe to retry.
package provider

import (
	"context"
	"time"
)

// ListOptions narrows a listing call. Zero value means "everything".
type ListOptions struct {
	FromDate *time.Time
	ToDate   *time.Time
	PageSize int
}

// ConversationSummary is the lightweight listing record.
type ConversationSummary struct {
	ProviderConversationID string
	Title                  string
	StartedAt              *time.Time
	EndedAt                *time.Time
	MessageCount           int
	RawMetadata            map[string]any
}

// MessageRecord is one normalized message of a fetched conversation.
type MessageRecord struct {
	ProviderMessageID string
	Role              string
	Content           string
	CreatedAt         *time.Time
	SequenceIndex     int
	RawMetadata       map[string]any
}

// ArtifactDescriptor describes an attachment. Binary content is not
// downloaded here; DownloadStatus says whether it was materialized.
type ArtifactDescriptor struct {
	ProviderArtifactID   string
	ArtifactType         string
	Filename             string
	MimeType             string
	DownloadStatus       string
	DownloadError        string
	MessageSequenceIndex *int
	RawMetadata          map[string]any
}

// ConversationDetail is the full fetched conversation with ordered messages.
type ConversationDetail struct {
	ProviderConversationID string
	Title                  string
	StartedAt              *time.Time
	EndedAt                *time.Time
	Messages               []MessageRecord
	Artifacts              []ArtifactDescriptor
	RawMetadata            map[string]any
}

// Adapter is implemented once per provider. Implementations must keep
// message order as returned by the upstream and classify failures with
// the error types in this package.
type Adapter interface {
	Name() string

	// ListConversations returns summaries for the credential's account,
	// newest first. Finite; pagination is handled internally.
	ListConversations(ctx context.Context, apiKey string, opts ListOptions) ([]ConversationSummary, error)

	// FetchConversation returns the full ordered message sequence for a
	// provider-native conversation id.
	FetchConversation(ctx context.Context, apiKey string, conversationID string) (*ConversationDetail, error)

	// FetchArtifacts returns artifact descriptors for a previously fetched
	// detail. Descriptors may be pending; content download is out of scope.
	FetchArtifacts(ctx context.Context, apiKey string, detail *ConversationDetail) ([]ArtifactDescriptor, error)
}
