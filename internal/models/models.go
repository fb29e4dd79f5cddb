package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider is immutable reference data describing an upstream LLM vendor.
// Rows are seeded at migration time; there is no write path after startup.
type Provider struct {
	ID            string  `gorm:"primaryKey;size:36" json:"id"`
	Name          string  `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	DisplayName   string  `gorm:"type:varchar(200);not null" json:"display_name"`
	BaseAPIURL    *string `gorm:"type:text" json:"base_api_url"`
	SchemaVersion *string `gorm:"type:varchar(50)" json:"schema_version"`
	Notes         *string `gorm:"type:text" json:"notes"`
}

func (Provider) TableName() string { return "providers" }

func (p *Provider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// APIKey stores an encrypted credential for one provider. KeyEncrypted is
// never exposed through the API layer; only label and metadata are.
type APIKey struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	ProviderID   string     `gorm:"size:36;index;not null" json:"provider_id"`
	Label        string     `gorm:"type:varchar(200);not null" json:"label"`
	KeyEncrypted string     `gorm:"type:text;not null" json:"-"`
	// no default tag: gorm would skip a zero-value write and an
	// inactive key could never be stored as such
	IsActive     bool       `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at"`
}

func (APIKey) TableName() string { return "api_keys" }

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// Project is a user-defined label, many-to-many with conversations.
type Project struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"type:varchar(200);uniqueIndex;not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Conversation origin values.
const (
	OriginAPI    = "api"
	OriginExport = "export"
	OriginManual = "manual"
)

type Conversation struct {
	ID                     string         `gorm:"primaryKey;size:36" json:"id"`
	ProviderID             string         `gorm:"size:36;index:idx_conversation_provider;index:uq_provider_conversation,unique,priority:1;not null" json:"provider_id"`
	ProviderConversationID *string        `gorm:"type:text;index:uq_provider_conversation,unique,priority:2" json:"provider_conversation_id"`
	Title                  *string        `gorm:"type:text" json:"title"`
	StartedAt              *time.Time     `gorm:"index:idx_conversation_started_at" json:"started_at"`
	EndedAt                *time.Time     `json:"ended_at"`
	Origin                 string         `gorm:"type:varchar(50);default:api" json:"origin"`
	ImportJobID            *string        `gorm:"size:26;index" json:"import_job_id"`
	ImportNotes            *string        `gorm:"type:text" json:"import_notes"`
	Archived               bool           `gorm:"not null;default:false" json:"archived"`
	RawMetadata            datatypes.JSON `json:"raw_metadata"`

	Messages  []Message  `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
	Artifacts []Artifact `gorm:"foreignKey:ConversationID" json:"artifacts,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ConversationProject joins conversations and projects.
type ConversationProject struct {
	ConversationID string `gorm:"primaryKey;size:36" json:"conversation_id"`
	ProjectID      string `gorm:"primaryKey;size:36" json:"project_id"`
}

func (ConversationProject) TableName() string { return "conversation_projects" }

// Message roles recognized across providers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message belongs to exactly one conversation. SequenceIndex defines the
// order and must be preserved through import and export.
type Message struct {
	ID                string         `gorm:"primaryKey;size:36" json:"id"`
	ConversationID    string         `gorm:"size:36;not null;index:idx_message_conversation;index:idx_message_sequence,priority:1" json:"conversation_id"`
	ProviderMessageID *string        `gorm:"type:text" json:"provider_message_id"`
	Role              string         `gorm:"type:varchar(50);not null" json:"role"`
	CreatedAt         *time.Time     `json:"created_at"`
	SequenceIndex     int            `gorm:"not null;index:idx_message_sequence,priority:2" json:"sequence_index"`
	Content           string         `gorm:"type:text;not null" json:"content"`
	RawMetadata       datatypes.JSON `json:"raw_metadata"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Artifact download statuses.
const (
	DownloadPending      = "pending"
	DownloadSuccess      = "success"
	DownloadNotSupported = "not_supported"
	DownloadError        = "error"
)

// Artifact is an attachment descriptor; binary content may not have been
// retrieved yet, which DownloadStatus communicates.
type Artifact struct {
	ID                 string         `gorm:"primaryKey;size:36" json:"id"`
	ConversationID     string         `gorm:"size:36;not null;index:idx_artifact_conversation" json:"conversation_id"`
	MessageID          *string        `gorm:"size:36;index" json:"message_id"`
	ArtifactType       string         `gorm:"type:varchar(50);not null" json:"artifact_type"`
	ProviderArtifactID *string        `gorm:"type:text" json:"provider_artifact_id"`
	Filename           *string        `gorm:"type:text" json:"filename"`
	MimeType           *string        `gorm:"type:varchar(200)" json:"mime_type"`
	StoragePath        *string        `gorm:"type:text" json:"storage_path"`
	DownloadStatus     string         `gorm:"type:varchar(50);default:pending" json:"download_status"`
	DownloadError      *string        `gorm:"type:text" json:"download_error"`
	Notes              *string        `gorm:"type:text" json:"notes"`
	RawMetadata        datatypes.JSON `json:"raw_metadata"`
}

func (Artifact) TableName() string { return "artifacts" }

func (a *Artifact) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

type JobStatus string

// running -> {success, partial, error}; terminal once status leaves running.
const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobPartial JobStatus = "partial"
	JobError   JobStatus = "error"
)

// ImportJob tracks one bounded import execution. Mutated only by the
// import runner; counters reflect entities actually persisted under it.
type ImportJob struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	ProviderID string `gorm:"size:36;index;not null" json:"provider_id"`
	APIKeyID   string `gorm:"size:36;index;not null" json:"api_key_id"`

	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	Status JobStatus `gorm:"type:varchar(16);index:idx_import_job_status;not null" json:"status"`

	RequestedRange datatypes.JSON `json:"requested_range"`
	Summary        *string        `gorm:"type:text" json:"summary"`
	ErrorDetails   *string        `gorm:"type:text" json:"error_details"`

	ConversationsImported int `gorm:"not null;default:0" json:"conversations_imported"`
	MessagesImported      int `gorm:"not null;default:0" json:"messages_imported"`
	ArtifactsImported     int `gorm:"not null;default:0" json:"artifacts_imported"`
}

func (ImportJob) TableName() string { return "import_jobs" }

// ConversationEdit is a curated variant of a conversation's markdown.
type ConversationEdit struct {
	ID                   string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID       string    `gorm:"size:36;index;not null" json:"conversation_id"`
	Label                string    `gorm:"type:varchar(200);not null" json:"label"`
	EditedMarkdown       string    `gorm:"type:text;not null" json:"edited_markdown"`
	CreatedAt            time.Time `json:"created_at"`
	LastModifiedAt       time.Time `gorm:"autoUpdateTime" json:"last_modified_at"`
	Notes                *string   `gorm:"type:text" json:"notes"`
	BaseConversationHash *string   `gorm:"type:varchar(64)" json:"base_conversation_hash"`
}

func (ConversationEdit) TableName() string { return "conversation_edits" }

func (e *ConversationEdit) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// All lists every entity for auto-migration.
func All() []any {
	return []any{
		&Provider{},
		&APIKey{},
		&Project{},
		&ImportJob{},
		&Conversation{},
		&ConversationProject{},
		&Message{},
		&Artifact{},
		&ConversationEdit{},
	}
}
