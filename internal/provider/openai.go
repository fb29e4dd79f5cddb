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

// OpenAIAdapter pulls conversation history from the ChatGPT export API.
// The upstream surface is still gated; BaseURL is configurable so the
// adapter can point at whatever host eventually serves it.
type OpenAIAdapter struct {
	BaseURL string
	Client  *http.Client
}

func NewOpenAIAdapter(baseURL string) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

type openaiConvSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	MessageCount int    `json:"message_count"`
}

type openaiListResp struct {
	Data    []openaiConvSummary `json:"data"`
	HasMore bool                `json:"has_more"`
	LastID  string              `json:"last_id"`
}

type openaiItem struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

type openaiAttachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

type openaiConvDetail struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	CreatedAt   int64              `json:"created_at"`
	UpdatedAt   int64              `json:"updated_at"`
	Items       []openaiItem       `json:"items"`
	Attachments []openaiAttachment `json:"attachments"`
}

func (a *OpenAIAdapter) get(ctx context.Context, apiKey, path string, conversationID string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+path, nil)
	if err != nil {
		return &UnavailableError{Provider: a.Name(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
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

func (a *OpenAIAdapter) ListConversations(ctx context.Context, apiKey string, opts ListOptions) ([]ConversationSummary, error) {
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
			q.Set("after", after)
		}
		var page openaiListResp
		if err := a.get(ctx, apiKey, "/conversations?"+q.Encode(), "", &page); err != nil {
			return nil, err
		}
		for _, c := range page.Data {
			started := unixPtr(c.CreatedAt)
			if !withinRange(started, opts) {
				continue
			}
			out = append(out, ConversationSummary{
				ProviderConversationID: c.ID,
				Title:                  c.Title,
				StartedAt:              started,
				EndedAt:                unixPtr(c.UpdatedAt),
				MessageCount:           c.MessageCount,
			})
		}
		if !page.HasMore || page.LastID == "" {
			return out, nil
		}
		after = page.LastID
	}
}

func (a *OpenAIAdapter) FetchConversation(ctx context.Context, apiKey string, conversationID string) (*ConversationDetail, error) {
	var d openaiConvDetail
	if err := a.get(ctx, apiKey, "/conversations/"+url.PathEscape(conversationID), conversationID, &d); err != nil {
		return nil, err
	}

	detail := &ConversationDetail{
		ProviderConversationID: d.ID,
		Title:                  d.Title,
		StartedAt:              unixPtr(d.CreatedAt),
		EndedAt:                unixPtr(d.UpdatedAt),
	}
	if detail.ProviderConversationID == "" {
		detail.ProviderConversationID = conversationID
	}
	for i, it := range d.Items {
		detail.Messages = append(detail.Messages, MessageRecord{
			ProviderMessageID: it.ID,
			Role:              it.Role,
			Content:           it.Content,
			CreatedAt:         unixPtr(it.CreatedAt),
			SequenceIndex:     i,
		})
	}
	for _, at := range d.Attachments {
		kind := at.Type
		if kind == "" {
			kind = "file"
		}
		detail.Artifacts = append(detail.Artifacts, ArtifactDescriptor{
			ProviderArtifactID: at.ID,
			ArtifactType:       kind,
			Filename:           at.Name,
			MimeType:           at.MimeType,
			DownloadStatus:     "pending",
		})
	}
	return detail, nil
}

// FetchArtifacts reports descriptors from the fetched detail. Binary
// download is not supported yet, so pending descriptors are surfaced as
// not_supported rather than left dangling.
func (a *OpenAIAdapter) FetchArtifacts(ctx context.Context, apiKey string, detail *ConversationDetail) ([]ArtifactDescriptor, error) {
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

func unixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func withinRange(t *time.Time, opts ListOptions) bool {
	if t == nil {
		return true
	}
	if opts.FromDate != nil && t.Before(*opts.FromDate) {
		return false
	}
	if opts.ToDate != nil && t.After(*opts.ToDate) {
		return false
	}
	return true
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
