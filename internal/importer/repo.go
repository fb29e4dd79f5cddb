package importer

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/models"
	"github.com/convault/convault/internal/provider"
)

// Repo wraps the persistence operations the runner needs.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	var j models.ImportJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) CreateJob(ctx context.Context, job *models.ImportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	var k models.APIKey
	if err := r.db.WithContext(ctx).First(&k, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *Repo) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	var p models.Provider
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// TouchAPIKey records credential use.
func (r *Repo) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

// ConversationExists reports whether this provider conversation was
// already imported. Duplicates are skipped, never re-counted.
func (r *Repo) ConversationExists(ctx context.Context, providerID, providerConversationID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("provider_id = ? AND provider_conversation_id = ?", providerID, providerConversationID).
		Count(&count).Error
	return count > 0, err
}

// PersistConversation writes one fetched conversation, its ordered
// messages and its artifact descriptors in a single transaction, so a
// partially fetched conversation never appears half-written. Returns the
// number of messages and artifacts persisted.
func (r *Repo) PersistConversation(ctx context.Context, jobID, providerID string, detail *provider.ConversationDetail, artifacts []provider.ArtifactDescriptor) (int, int, error) {
	var messages, arts int

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv := &models.Conversation{
			ProviderID:             providerID,
			ProviderConversationID: nonEmptyPtr(detail.ProviderConversationID),
			Title:                  nonEmptyPtr(detail.Title),
			StartedAt:              detail.StartedAt,
			EndedAt:                detail.EndedAt,
			Origin:                 models.OriginAPI,
			ImportJobID:            &jobID,
			RawMetadata:            toJSON(detail.RawMetadata),
		}
		if err := tx.Create(conv).Error; err != nil {
			return err
		}

		for _, m := range detail.Messages {
			msg := &models.Message{
				ConversationID:    conv.ID,
				ProviderMessageID: nonEmptyPtr(m.ProviderMessageID),
				Role:              m.Role,
				CreatedAt:         m.CreatedAt,
				SequenceIndex:     m.SequenceIndex,
				Content:           m.Content,
				RawMetadata:       toJSON(m.RawMetadata),
			}
			if err := tx.Create(msg).Error; err != nil {
				return err
			}
			messages++
		}

		for _, a := range artifacts {
			status := a.DownloadStatus
			if status == "" {
				status = models.DownloadPending
			}
			art := &models.Artifact{
				ConversationID:     conv.ID,
				ArtifactType:       a.ArtifactType,
				ProviderArtifactID: nonEmptyPtr(a.ProviderArtifactID),
				Filename:           nonEmptyPtr(a.Filename),
				MimeType:           nonEmptyPtr(a.MimeType),
				DownloadStatus:     status,
				DownloadError:      nonEmptyPtr(a.DownloadError),
				RawMetadata:        toJSON(a.RawMetadata),
			}
			if err := tx.Create(art).Error; err != nil {
				return err
			}
			arts++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return messages, arts, nil
}

// FinishJob writes the terminal state. Jobs are never mutated afterwards.
func (r *Repo) FinishJob(ctx context.Context, job *models.ImportJob) error {
	now := time.Now().UTC()
	job.FinishedAt = &now
	return r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", job.ID, models.JobRunning).
		Updates(map[string]any{
			"status":                 job.Status,
			"finished_at":            job.FinishedAt,
			"summary":                job.Summary,
			"error_details":          job.ErrorDetails,
			"conversations_imported": job.ConversationsImported,
			"messages_imported":      job.MessagesImported,
			"artifacts_imported":     job.ArtifactsImported,
		}).Error
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toJSON(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
