package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter pulls conversation history from the Claude export API.
// Like the OpenAI adapter, the base URL is configurable because the
// upstream history surface is not generally available yet.
type AnthropicAdapter struct {
	BaseURL string
	Client  *http.Client
}

func NewAnthropicAdapter(baseURL string) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicAdapter{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

type anthropicConvSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type anthropicListResp struct {
	Data    []anthropicConvSummary `json:"data"`
	HasMore bool                   `json:"has_more"`
	LastID  string                 `json:"last_id"`
}

type anthropicMessage struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"created_at"`
}

type anthropicArtifact struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

type anthropicConvDetail struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	CreatedAt *time.Time          `json:"created_at"`
	UpdatedAt *time.Time          `json:"updated_at"`
	Messages  []anthropicMessage  `json:"chat_messages"`
	Artifacts []anthropicArtifact `json:"artifacts"`
}

func (a *AnthropicAdapter) get(ctx context.Context, apiKey, path string, conversationID string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+path, nil)
	if err != nil {
		return &UnavailableError{Provider: a.Name(), Err: err}
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return &UnavailableError{Provider: a.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(a.Name(), resp.StatusCode, conversationID, retryAfter(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UnavailableError{Provider: a.Name(), Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (a *AnthropicAdapter) ListConversations(ctx context.Context, apiKey string, opts ListOptions) ([]ConversationSummary, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	var (
		out   []ConversationSummary
		after string
	)
	for {
		q := url.Values{"limit": {strconv.Itoa(pageSize)}}
		if after != "" {
			q.Set("after_id", after)
		}
		var page anthropicListResp
		if err := a.get(ctx, apiKey, "/conversations?"+q.Encode(), "", &page); err != nil {
			return nil, err
		}
		for _, c := range page.Data {
			if !withinRange(c.CreatedAt, opts) {
				continue
			}
			out = append(out, ConversationSummary{
				ProviderConversationID: c.ID,
				Title:                  c.Name,
				StartedAt:              c.CreatedAt,
				EndedAt:                c.UpdatedAt,
			})
		}
		if !page.HasMore || page.LastID == "" {
			return out, nil
		}
		after = page.LastID
	}
}

func (a *AnthropicAdapter) FetchConversation(ctx context.Context, apiKey string, conversationID string) (*ConversationDetail, error) {
	var d anthropicConvDetail
	if err := a.get(ctx, apiKey, "/conversations/"+url.PathEscape(conversationID), conversationID, &d); err != nil {
		return nil, err
	}

	detail := &ConversationDetail{
		ProviderConversationID: d.ID,
		Title:                  d.Name,
		StartedAt:              d.CreatedAt,
		EndedAt:                d.UpdatedAt,
	}
	if detail.ProviderConversationID == "" {
		detail.ProviderConversationID = conversationID
	}
	for i, m := range d.Messages {
		role := m.Sender
		if role == "human" {
			role = "user"
		}
		detail.Messages = append(detail.Messages, MessageRecord{
			ProviderMessageID: m.ID,
			Role:              role,
			Content:           m.Text,
			CreatedAt:         m.CreatedAt,
			SequenceIndex:     i,
		})
	}
	for _, art := range d.Artifacts {
		kind := art.Kind
		if kind == "" {
			kind = "other"
		}
		detail.Artifacts = append(detail.Artifacts, ArtifactDescriptor{
			ProviderArtifactID: art.ID,
			ArtifactType:       kind,
			Filename:           art.FileName,
			MimeType:           art.MimeType,
			DownloadStatus:     "pending",
		})
	}
	return detail, nil
}

func (a *AnthropicAdapter) FetchArtifacts(ctx context.Context, apiKey string, detail *ConversationDetail) ([]ArtifactDescriptor, error) {
	if detail == nil {
		return nil, fmt.Errorf("%s: nil conversation detail", a.Name())
	}
	out := make([]ArtifactDescriptor, len(detail.Artifacts))
	copy(out, detail.Artifacts)
	for i := range out {
		if out[i].DownloadStatus == "" || out[i].DownloadStatus == "pending" {
			out[i].DownloadStatus = "not_supported"
		}
	}
	return out, nil
}
