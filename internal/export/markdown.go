// Package export renders stored conversations into portable documents.
package export

import (
	"sort"
	"strings"
	"time"

	"github.com/convault/convault/internal/models"
)

// Markdown renders a conversation as a Markdown document: title, metadata
// block, one role-labeled section per message in sequence order, then an
// attachments listing. Rendering is deterministic; exporting the same
// conversation twice yields byte-identical output.
func Markdown(conv *models.Conversation, providerName string, projectNames []string) string {
	var lines []string

	title := "Untitled Conversation"
	if conv.Title != nil && *conv.Title != "" {
		title = *conv.Title
	}
	lines = append(lines, "# "+title+"\n")

	lines = append(lines, "## Metadata\n")
	if providerName == "" {
		providerName = "Unknown"
	}
	lines = append(lines, "- **Provider:** "+providerName)
	convID := "N/A"
	if conv.ProviderConversationID != nil && *conv.ProviderConversationID != "" {
		convID = *conv.ProviderConversationID
	}
	lines = append(lines, "- **Conversation ID:** "+convID)
	if conv.StartedAt != nil {
		lines = append(lines, "- **Started:** "+conv.StartedAt.UTC().Format(time.RFC3339))
	}
	if conv.EndedAt != nil {
		lines = append(lines, "- **Ended:** "+conv.EndedAt.UTC().Format(time.RFC3339))
	}
	if len(projectNames) > 0 {
		lines = append(lines, "- **Projects:** "+strings.Join(projectNames, ", "))
	}

	lines = append(lines, "\n---\n")
	lines = append(lines, "## Conversation\n")

	msgs := make([]models.Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SequenceIndex < msgs[j].SequenceIndex })

	for _, m := range msgs {
		lines = append(lines, "**"+capitalize(m.Role)+":**\n")
		lines = append(lines, m.Content+"\n")
	}

	if len(conv.Artifacts) > 0 {
		lines = append(lines, "\n---\n")
		lines = append(lines, "## Attachments\n")
		for _, a := range conv.Artifacts {
			filename := "Unknown"
			if a.Filename != nil && *a.Filename != "" {
				filename = *a.Filename
			}
			lines = append(lines, "- **"+filename+"** ("+a.ArtifactType+", status: "+a.DownloadStatus+")")
			if a.StoragePath != nil && *a.StoragePath != "" {
				lines = append(lines, "  - Path: "+*a.StoragePath)
			}
			if a.DownloadError != nil && *a.DownloadError != "" {
				lines = append(lines, "  - Error: "+*a.DownloadError)
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
