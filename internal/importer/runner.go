// Package importer runs import jobs: one adapter invocation sequence per
// job, sequential over the conversation list, with per-conversation
// transactions and partial-failure tolerance.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/convault/convault/internal/models"
	"github.com/convault/convault/internal/observability"
	"github.com/convault/convault/internal/provider"
	"github.com/convault/convault/internal/secrets"
)

// maxErrorDetails caps how many per-conversation failures are kept in the
// job's error_details column.
const maxErrorDetails = 10

type Runner struct {
	repo     *Repo
	registry *provider.Registry
	cipher   *secrets.Cipher
	metrics  *observability.Metrics
	log      *slog.Logger
}

func NewRunner(repo *Repo, registry *provider.Registry, cipher *secrets.Cipher, metrics *observability.Metrics, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{repo: repo, registry: registry, cipher: cipher, metrics: metrics, log: log}
}

type requestedRange struct {
	FromDate *time.Time `json:"from_date,omitempty"`
	ToDate   *time.Time `json:"to_date,omitempty"`
}

// Run executes one import job to its terminal state. Conversations are
// processed sequentially to keep upstream call order deterministic and
// avoid uncoordinated rate-limit pressure on one credential.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	start := time.Now()

	job, err := r.repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("importer: load job %s: %w", jobID, err)
	}
	if job.Status != models.JobRunning {
		// terminal already; a redelivered job id must not run twice
		r.log.Info("import job already finished", "job_id", jobID, "status", job.Status)
		return nil
	}

	providerName := "unknown"
	defer func() {
		r.metrics.ObserveJob(providerName, string(job.Status), time.Since(start),
			job.ConversationsImported, job.MessagesImported, job.ArtifactsImported)
	}()

	prov, err := r.repo.GetProvider(ctx, job.ProviderID)
	if err != nil {
		return r.fail(ctx, job, "provider not found")
	}
	providerName = prov.Name

	adapter, err := r.registry.Get(prov.Name)
	if err != nil {
		return r.fail(ctx, job, err.Error())
	}

	keyRec, err := r.repo.GetAPIKey(ctx, job.APIKeyID)
	if err != nil {
		return r.fail(ctx, job, "API key not found")
	}
	apiKey, err := r.cipher.Decrypt(keyRec.KeyEncrypted)
	if err != nil {
		// never echo ciphertext or key material
		return r.fail(ctx, job, "stored credential could not be decrypted")
	}

	opts := listOptions(job)

	summaries, err := adapter.ListConversations(ctx, apiKey, opts)
	if err != nil {
		r.log.Error("import list call failed", "job_id", job.ID, "provider", prov.Name, "err", err)
		return r.fail(ctx, job, err.Error())
	}

	if err := r.repo.TouchAPIKey(ctx, job.APIKeyID, time.Now().UTC()); err != nil {
		r.log.Warn("failed to update key last_used_at", "job_id", job.ID, "err", err)
	}

	var (
		errs     []string
		canceled bool
	)
	for _, summary := range summaries {
		if ctx.Err() != nil {
			canceled = true
			break
		}

		exists, err := r.repo.ConversationExists(ctx, job.ProviderID, summary.ProviderConversationID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("conversation %s: %v", summary.ProviderConversationID, err))
			continue
		}
		if exists {
			continue
		}

		detail, err := adapter.FetchConversation(ctx, apiKey, summary.ProviderConversationID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("conversation %s: %v", summary.ProviderConversationID, err))
			continue
		}
		artifacts, err := adapter.FetchArtifacts(ctx, apiKey, detail)
		if err != nil {
			errs = append(errs, fmt.Sprintf("conversation %s: %v", summary.ProviderConversationID, err))
			continue
		}

		messages, arts, err := r.repo.PersistConversation(ctx, job.ID, job.ProviderID, detail, artifacts)
		if err != nil {
			errs = append(errs, fmt.Sprintf("conversation %s: %v", summary.ProviderConversationID, err))
			continue
		}

		job.ConversationsImported++
		job.MessagesImported += messages
		job.ArtifactsImported += arts
	}

	switch {
	case canceled:
		job.Status = models.JobError
		errs = append([]string{"import canceled before completion"}, errs...)
	case len(errs) == 0:
		job.Status = models.JobSuccess
	case len(errs) >= len(summaries):
		job.Status = models.JobError
	default:
		job.Status = models.JobPartial
	}

	summary := fmt.Sprintf("Imported %d conversations, %d messages, %d artifacts",
		job.ConversationsImported, job.MessagesImported, job.ArtifactsImported)
	job.Summary = &summary
	if len(errs) > 0 {
		if len(errs) > maxErrorDetails {
			errs = errs[:maxErrorDetails]
		}
		detail := strings.Join(errs, "\n")
		job.ErrorDetails = &detail
	}

	if err := r.finish(ctx, job); err != nil {
		return err
	}

	r.log.Info("import job finished",
		"job_id", job.ID,
		"provider", prov.Name,
		"status", job.Status,
		"conversations", job.ConversationsImported,
		"messages", job.MessagesImported,
		"artifacts", job.ArtifactsImported,
		"failures", len(errs),
		"took", time.Since(start),
	)
	return nil
}

// fail finalizes a job that died before or during the list step.
func (r *Runner) fail(ctx context.Context, job *models.ImportJob, detail string) error {
	job.Status = models.JobError
	job.ErrorDetails = &detail
	return r.finish(ctx, job)
}

// finish writes the terminal state. Finishing may be racing a shutdown;
// fall back to a background context so the terminal state still lands.
func (r *Runner) finish(ctx context.Context, job *models.ImportJob) error {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := r.repo.FinishJob(ctx, job); err != nil {
		return fmt.Errorf("importer: finish job %s: %w", job.ID, err)
	}
	return nil
}

func listOptions(job *models.ImportJob) provider.ListOptions {
	var opts provider.ListOptions
	if len(job.RequestedRange) == 0 {
		return opts
	}
	var rr requestedRange
	if err := json.Unmarshal(job.RequestedRange, &rr); err != nil {
		return opts
	}
	opts.FromDate = rr.FromDate
	opts.ToDate = rr.ToDate
	return opts
}
