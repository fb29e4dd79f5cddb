package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/config"
	"github.com/convault/convault/internal/db"
	"github.com/convault/convault/internal/httpapi"
	"github.com/convault/convault/internal/httpapi/handlers"
	"github.com/convault/convault/internal/models"
	"github.com/convault/convault/internal/observability"
	"github.com/convault/convault/internal/provider"
	"github.com/convault/convault/internal/secrets"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }

func (s stubAdapter) ListConversations(ctx context.Context, apiKey string, opts provider.ListOptions) ([]provider.ConversationSummary, error) {
	return nil, nil
}

func (s stubAdapter) FetchConversation(ctx context.Context, apiKey, conversationID string) (*provider.ConversationDetail, error) {
	return nil, nil
}

func (s stubAdapter) FetchArtifacts(ctx context.Context, apiKey string, detail *provider.ConversationDetail) ([]provider.ArtifactDescriptor, error) {
	return nil, nil
}

type fakeDispatcher struct {
	jobIDs []string
	err    error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, jobID string) error {
	if d.err != nil {
		return d.err
	}
	d.jobIDs = append(d.jobIDs, jobID)
	return nil
}

func (d *fakeDispatcher) Close() error { return nil }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB, *fakeDispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cipher, err := secrets.NewCipher("handler-test-secret")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}

	reg := provider.NewRegistry()
	reg.Register(stubAdapter{name: "openai"})
	reg.Register(stubAdapter{name: "anthropic"})

	disp := &fakeDispatcher{}

	cfg := config.Config{Env: "test", DefaultPageSize: 50, MaxPageSize: 200}

	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	h := handlers.New(gdb, cfg, cipher, reg, disp, observability.InitLogger(false))
	return httpapi.NewRouter(h, metrics, promReg), gdb, disp
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (body=%s)", err, w.Body.String())
		}
	}
	return w, env
}

func seededProvider(t *testing.T, gdb *gorm.DB, name string) models.Provider {
	t.Helper()
	var prov models.Provider
	if err := gdb.First(&prov, "name = ?", name).Error; err != nil {
		t.Fatalf("seeded provider %s not found: %v", name, err)
	}
	return prov
}

func mustCreate(t *testing.T, gdb *gorm.DB, value any) {
	t.Helper()
	if err := gdb.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

func TestProvidersAreSeeded(t *testing.T) {
	r, _, _ := newTestServer(t)

	w, env := doJSON(t, r, http.MethodGet, "/api/providers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var providers []models.Provider
	if err := json.Unmarshal(env.Data, &providers); err != nil {
		t.Fatalf("decode providers: %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("expected 2 seeded providers, got %d", len(providers))
	}
}

func TestCreateAPIKeyNeverReturnsKeyMaterial(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")

	w, env := doJSON(t, r, http.MethodPost, "/api/api-keys", map[string]any{
		"provider_id":   prov.ID,
		"label":         "personal",
		"api_key_value": "sk-super-secret-value",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "sk-super-secret-value") {
		t.Fatalf("response leaked the raw key: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "key_encrypted") {
		t.Fatalf("response leaked the ciphertext field: %s", w.Body.String())
	}

	var created models.APIKey
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode key: %v", err)
	}
	if created.ID == "" || !created.IsActive {
		t.Fatalf("unexpected created key: %+v", created)
	}

	// ciphertext stored, decryptable, and not the plaintext
	var stored models.APIKey
	if err := gdb.First(&stored, "id = ?", created.ID).Error; err != nil {
		t.Fatalf("load stored key: %v", err)
	}
	if stored.KeyEncrypted == "" || stored.KeyEncrypted == "sk-super-secret-value" {
		t.Fatalf("key not encrypted at rest: %q", stored.KeyEncrypted)
	}
}

func TestCreateAPIKeyRequiresAPIKeyValueField(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")

	w, _ := doJSON(t, r, http.MethodPost, "/api/api-keys", map[string]any{
		"provider_id": prov.ID,
		"label":       "x",
		"key":         "wrong-field-name",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateAPIKeyUnknownProvider(t *testing.T) {
	r, _, _ := newTestServer(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/api-keys", map[string]any{
		"provider_id":   "no-such-provider",
		"label":         "x",
		"api_key_value": "k",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if env.Code != common.CodeNotFound {
		t.Fatalf("code = %d", env.Code)
	}
}

func TestDeleteAPIKeyBlockedWhileReferenced(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")

	key := models.APIKey{ProviderID: prov.ID, Label: "used", KeyEncrypted: "ct", IsActive: true}
	mustCreate(t, gdb, &key)
	mustCreate(t, gdb, &models.ImportJob{
		ID:         "01JOBREFERENCESTHISKEY0000",
		ProviderID: prov.ID,
		APIKeyID:   key.ID,
		StartedAt:  time.Now().UTC(),
		Status:     models.JobSuccess,
	})

	w, _ := doJSON(t, r, http.MethodDelete, "/api/api-keys/"+key.ID, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}

	// an unreferenced key deletes fine
	free := models.APIKey{ProviderID: prov.ID, Label: "free", KeyEncrypted: "ct", IsActive: true}
	mustCreate(t, gdb, &free)
	w, _ = doJSON(t, r, http.MethodDelete, "/api/api-keys/"+free.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var count int64
	gdb.Model(&models.APIKey{}).Where("id = ?", free.ID).Count(&count)
	if count != 0 {
		t.Fatalf("key still present after delete")
	}
}

func TestInactiveAPIKeyStaysInactiveAtRest(t *testing.T) {
	_, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")

	key := models.APIKey{ProviderID: prov.ID, Label: "dormant", KeyEncrypted: "ct", IsActive: false}
	mustCreate(t, gdb, &key)

	var stored models.APIKey
	if err := gdb.First(&stored, "id = ?", key.ID).Error; err != nil {
		t.Fatalf("load key: %v", err)
	}
	if stored.IsActive {
		t.Fatalf("key created inactive but stored active")
	}
}

func TestProjectNameMustBeUnique(t *testing.T) {
	r, _, _ := newTestServer(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/projects", map[string]any{"name": "research"})
	if w.Code != http.StatusOK {
		t.Fatalf("first create status = %d", w.Code)
	}
	w, env := doJSON(t, r, http.MethodPost, "/api/projects", map[string]any{"name": "research"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate create status = %d", w.Code)
	}
	if env.Code != common.CodeBadRequest {
		t.Fatalf("code = %d", env.Code)
	}
}

func TestRenameProjectToExistingNameRejected(t *testing.T) {
	r, gdb, _ := newTestServer(t)

	a := models.Project{Name: "alpha"}
	b := models.Project{Name: "beta"}
	mustCreate(t, gdb, &a)
	mustCreate(t, gdb, &b)

	name := "alpha"
	w, _ := doJSON(t, r, http.MethodPatch, "/api/projects/"+b.ID, map[string]any{"name": name})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func seedConversation(t *testing.T, gdb *gorm.DB, providerID, pcid, title string, started time.Time, messages []string, withArtifact bool) models.Conversation {
	t.Helper()
	conv := models.Conversation{
		ProviderID:             providerID,
		ProviderConversationID: &pcid,
		Title:                  &title,
		StartedAt:              &started,
		Origin:                 models.OriginAPI,
	}
	mustCreate(t, gdb, &conv)
	for i, content := range messages {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		mustCreate(t, gdb, &models.Message{
			ConversationID: conv.ID,
			Role:           role,
			SequenceIndex:  i,
			Content:        content,
		})
	}
	if withArtifact {
		fn := pcid + ".png"
		mustCreate(t, gdb, &models.Artifact{
			ConversationID: conv.ID,
			ArtifactType:   "image",
			Filename:       &fn,
			DownloadStatus: models.DownloadNotSupported,
		})
	}
	return conv
}

func TestListConversationsFiltersAndPagination(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	openai := seededProvider(t, gdb, "openai")
	anthropic := seededProvider(t, gdb, "anthropic")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c1 := seedConversation(t, gdb, openai.ID, "c1", "Kafka tuning notes", base, []string{"how do I tune kafka", "increase partitions"}, true)
	seedConversation(t, gdb, openai.ID, "c2", "Trip planning", base.Add(24*time.Hour), []string{"flights to Lisbon", "book the morning one"}, false)
	seedConversation(t, gdb, anthropic.ID, "c3", "Resume review", base.Add(48*time.Hour), []string{"review my resume"}, false)

	proj := models.Project{Name: "infra"}
	mustCreate(t, gdb, &proj)
	mustCreate(t, gdb, &models.ConversationProject{ConversationID: c1.ID, ProjectID: proj.ID})

	type page struct {
		Items []struct {
			ID           string   `json:"id"`
			Title        *string  `json:"title"`
			MessageCount int64    `json:"message_count"`
			HasArtifacts bool     `json:"has_artifacts"`
			Projects     []string `json:"projects"`
		} `json:"items"`
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		PageSize   int   `json:"page_size"`
		TotalPages int64 `json:"total_pages"`
	}
	list := func(query string) page {
		t.Helper()
		w, env := doJSON(t, r, http.MethodGet, "/api/conversations"+query, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list %s status = %d body=%s", query, w.Code, w.Body.String())
		}
		var p page
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("decode page: %v", err)
		}
		return p
	}

	all := list("")
	if all.Total != 3 || len(all.Items) != 3 {
		t.Fatalf("expected 3 conversations, got total=%d items=%d", all.Total, len(all.Items))
	}
	// newest first
	if all.Items[0].Title == nil || *all.Items[0].Title != "Resume review" {
		t.Fatalf("expected newest first, got %+v", all.Items[0])
	}

	byProvider := list("?provider_id=" + anthropic.ID)
	if byProvider.Total != 1 {
		t.Fatalf("provider filter: total = %d", byProvider.Total)
	}

	// search matches message content, not just titles
	bySearch := list("?search=partitions")
	if bySearch.Total != 1 || bySearch.Items[0].ID != c1.ID {
		t.Fatalf("search filter: %+v", bySearch)
	}

	byProject := list("?project_id=" + proj.ID)
	if byProject.Total != 1 || byProject.Items[0].ID != c1.ID {
		t.Fatalf("project filter: %+v", byProject)
	}
	if len(byProject.Items[0].Projects) != 1 || byProject.Items[0].Projects[0] != "infra" {
		t.Fatalf("project names: %+v", byProject.Items[0].Projects)
	}

	withArtifacts := list("?has_artifacts=true")
	if withArtifacts.Total != 1 || !withArtifacts.Items[0].HasArtifacts {
		t.Fatalf("has_artifacts filter: %+v", withArtifacts)
	}
	withoutArtifacts := list("?has_artifacts=false")
	if withoutArtifacts.Total != 2 {
		t.Fatalf("has_artifacts=false total = %d", withoutArtifacts.Total)
	}

	byDate := list("?from_date=2026-03-02&to_date=2026-03-02")
	if byDate.Total != 1 || *byDate.Items[0].Title != "Trip planning" {
		t.Fatalf("date filter: %+v", byDate)
	}

	paged := list("?page=2&page_size=1")
	if paged.Total != 3 || paged.TotalPages != 3 || len(paged.Items) != 1 || paged.Page != 2 {
		t.Fatalf("pagination: %+v", paged)
	}

	if c1.ID != "" {
		counted := list("?search=kafka")
		if counted.Items[0].MessageCount != 2 {
			t.Fatalf("message_count = %d", counted.Items[0].MessageCount)
		}
	}
}

func TestListConversationsRejectsBadParams(t *testing.T) {
	r, _, _ := newTestServer(t)

	for _, q := range []string{"?page=0", "?page_size=-1", "?from_date=yesterday", "?has_artifacts=maybe"} {
		w, _ := doJSON(t, r, http.MethodGet, "/api/conversations"+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("query %s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestGetConversationDetailOrdersMessages(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")
	conv := seedConversation(t, gdb, prov.ID, "detail", "Detail", time.Now().UTC(), []string{"first", "second", "third"}, true)

	w, env := doJSON(t, r, http.MethodGet, "/api/conversations/"+conv.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var payload struct {
		Conversation models.Conversation `json:"conversation"`
		Projects     []string            `json:"projects"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if len(payload.Conversation.Messages) != 3 {
		t.Fatalf("messages = %d", len(payload.Conversation.Messages))
	}
	for i, m := range payload.Conversation.Messages {
		if m.SequenceIndex != i {
			t.Fatalf("message %d out of order: seq=%d", i, m.SequenceIndex)
		}
	}
	if len(payload.Conversation.Artifacts) != 1 {
		t.Fatalf("artifacts = %d", len(payload.Conversation.Artifacts))
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/conversations/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing conversation status = %d", w.Code)
	}
}

func TestExportMarkdownHeadersAndBody(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")
	conv := seedConversation(t, gdb, prov.ID, "exp-1", "Export me", time.Now().UTC(), []string{"hello", "hi there"}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+conv.ID+"/export-markdown", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type = %q", ct)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "attachment") || !strings.Contains(cd, conv.ID+".md") {
		t.Fatalf("content disposition = %q", cd)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "# Export me") {
		t.Fatalf("body does not start with title: %q", body[:min(len(body), 40)])
	}
	if !strings.Contains(body, prov.DisplayName) {
		t.Fatalf("body missing provider display name")
	}
}

func TestExportMarkdownArtifactOrderIsStable(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")
	conv := seedConversation(t, gdb, prov.ID, "exp-2", "With files", time.Now().UTC(), []string{"hi"}, false)

	first := "aaa.png"
	second := "zzz.png"
	mustCreate(t, gdb, &models.Artifact{
		ID: "00000000-0000-0000-0000-0000000000aa", ConversationID: conv.ID,
		ArtifactType: "image", Filename: &first, DownloadStatus: models.DownloadNotSupported,
	})
	mustCreate(t, gdb, &models.Artifact{
		ID: "00000000-0000-0000-0000-0000000000zz", ConversationID: conv.ID,
		ArtifactType: "image", Filename: &second, DownloadStatus: models.DownloadNotSupported,
	})

	export := func() string {
		req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+conv.ID+"/export-markdown", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		return w.Body.String()
	}

	body := export()
	if i, j := strings.Index(body, first), strings.Index(body, second); i < 0 || j < 0 || i > j {
		t.Fatalf("artifacts out of id order: %q at %d, %q at %d", first, i, second, j)
	}
	if again := export(); again != body {
		t.Fatalf("export not byte-stable across calls")
	}
}

func TestAssignAndRemoveConversationProject(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")
	conv := seedConversation(t, gdb, prov.ID, "p-1", "Tagged", time.Now().UTC(), []string{"hi"}, false)
	proj := models.Project{Name: "taxes"}
	mustCreate(t, gdb, &proj)

	w, _ := doJSON(t, r, http.MethodPost, "/api/conversations/"+conv.ID+"/projects", map[string]any{"project_id": proj.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("assign status = %d", w.Code)
	}
	// idempotent
	w, _ = doJSON(t, r, http.MethodPost, "/api/conversations/"+conv.ID+"/projects", map[string]any{"project_id": proj.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("re-assign status = %d", w.Code)
	}
	var links int64
	gdb.Model(&models.ConversationProject{}).Where("conversation_id = ?", conv.ID).Count(&links)
	if links != 1 {
		t.Fatalf("links = %d, want 1", links)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/conversations/"+conv.ID+"/projects", map[string]any{"project_id": "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown project status = %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodDelete, "/api/conversations/"+conv.ID+"/projects/"+proj.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodDelete, "/api/conversations/"+conv.ID+"/projects/"+proj.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second remove status = %d", w.Code)
	}
}

func TestCreateImportJobDispatches(t *testing.T) {
	r, gdb, disp := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")
	key := models.APIKey{ProviderID: prov.ID, Label: "main", KeyEncrypted: "ct", IsActive: true}
	mustCreate(t, gdb, &key)

	w, env := doJSON(t, r, http.MethodPost, "/api/import-jobs", map[string]any{
		"provider_id": prov.ID,
		"api_key_id":  key.ID,
		"from_date":   "2026-01-01",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var job models.ImportJob
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != models.JobRunning {
		t.Fatalf("status = %s", job.Status)
	}
	if len(job.ID) != 26 {
		t.Fatalf("job id %q is not a ULID", job.ID)
	}
	if len(disp.jobIDs) != 1 || disp.jobIDs[0] != job.ID {
		t.Fatalf("dispatched ids = %v", disp.jobIDs)
	}
	if !strings.Contains(string(job.RequestedRange), "2026-01-01") {
		t.Fatalf("requested range = %s", job.RequestedRange)
	}
}

func TestCreateImportJobValidation(t *testing.T) {
	r, gdb, disp := newTestServer(t)
	openai := seededProvider(t, gdb, "openai")
	anthropic := seededProvider(t, gdb, "anthropic")

	inactive := models.APIKey{ProviderID: openai.ID, Label: "off", KeyEncrypted: "ct", IsActive: false}
	mustCreate(t, gdb, &inactive)
	wrongProv := models.APIKey{ProviderID: anthropic.ID, Label: "claude", KeyEncrypted: "ct", IsActive: true}
	mustCreate(t, gdb, &wrongProv)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing fields", map[string]any{"provider_id": openai.ID}, http.StatusBadRequest},
		{"unknown provider", map[string]any{"provider_id": "nope", "api_key_id": inactive.ID}, http.StatusNotFound},
		{"unknown key", map[string]any{"provider_id": openai.ID, "api_key_id": "nope"}, http.StatusNotFound},
		{"inactive key", map[string]any{"provider_id": openai.ID, "api_key_id": inactive.ID}, http.StatusBadRequest},
		{"key from another provider", map[string]any{"provider_id": openai.ID, "api_key_id": wrongProv.ID}, http.StatusBadRequest},
		{"bad from_date", map[string]any{"provider_id": openai.ID, "api_key_id": wrongProv.ID, "from_date": "soon"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w, _ := doJSON(t, r, http.MethodPost, "/api/import-jobs", tc.body)
		if w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
	if len(disp.jobIDs) != 0 {
		t.Fatalf("no job should have been dispatched, got %v", disp.jobIDs)
	}
}

func TestCreateImportJobDispatchFailureMarksJobError(t *testing.T) {
	r, gdb, disp := newTestServer(t)
	disp.err = fmt.Errorf("broker unreachable")

	prov := seededProvider(t, gdb, "openai")
	key := models.APIKey{ProviderID: prov.ID, Label: "main", KeyEncrypted: "ct", IsActive: true}
	mustCreate(t, gdb, &key)

	w, _ := doJSON(t, r, http.MethodPost, "/api/import-jobs", map[string]any{
		"provider_id": prov.ID,
		"api_key_id":  key.ID,
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}

	var job models.ImportJob
	if err := gdb.First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != models.JobError || job.FinishedAt == nil {
		t.Fatalf("job not finalized: status=%s finished=%v", job.Status, job.FinishedAt)
	}
}

func TestListImportJobsNewestFirst(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")
	key := models.APIKey{ProviderID: prov.ID, Label: "main", KeyEncrypted: "ct", IsActive: true}
	mustCreate(t, gdb, &key)

	old := models.ImportJob{ID: "01OLDJOB000000000000000000", ProviderID: prov.ID, APIKeyID: key.ID,
		StartedAt: time.Now().UTC().Add(-time.Hour), Status: models.JobSuccess}
	recent := models.ImportJob{ID: "01NEWJOB000000000000000000", ProviderID: prov.ID, APIKeyID: key.ID,
		StartedAt: time.Now().UTC(), Status: models.JobRunning}
	mustCreate(t, gdb, &old)
	mustCreate(t, gdb, &recent)

	w, env := doJSON(t, r, http.MethodGet, "/api/import-jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var jobs []models.ImportJob
	if err := json.Unmarshal(env.Data, &jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != recent.ID {
		t.Fatalf("unexpected order: %+v", jobs)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/import-jobs/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", w.Code)
	}
}

func TestConversationEditsLifecycle(t *testing.T) {
	r, gdb, _ := newTestServer(t)
	prov := seededProvider(t, gdb, "openai")
	conv := seedConversation(t, gdb, prov.ID, "e-1", "Curated", time.Now().UTC(), []string{"raw"}, false)

	w, env := doJSON(t, r, http.MethodPost, "/api/conversations/"+conv.ID+"/edits", map[string]any{
		"label":           "cleaned up",
		"edited_markdown": "# Curated\n\ntrimmed",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create edit status = %d body=%s", w.Code, w.Body.String())
	}
	var edit models.ConversationEdit
	if err := json.Unmarshal(env.Data, &edit); err != nil {
		t.Fatalf("decode edit: %v", err)
	}
	if edit.BaseConversationHash == nil || len(*edit.BaseConversationHash) != 64 {
		t.Fatalf("base hash not recorded: %+v", edit.BaseConversationHash)
	}

	w, _ = doJSON(t, r, http.MethodPatch, "/api/edits/"+edit.ID, map[string]any{"label": "v2"})
	if w.Code != http.StatusOK {
		t.Fatalf("update edit status = %d", w.Code)
	}
	var updated models.ConversationEdit
	if err := gdb.First(&updated, "id = ?", edit.ID).Error; err != nil {
		t.Fatalf("load edit: %v", err)
	}
	if updated.Label != "v2" {
		t.Fatalf("label = %q", updated.Label)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/conversations/"+conv.ID+"/edits", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list edits status = %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodDelete, "/api/edits/"+edit.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete edit status = %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodDelete, "/api/edits/"+edit.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", w.Code)
	}
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	r, _, _ := newTestServer(t)

	w, env := doJSON(t, r, http.MethodGet, "/api/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if env.Code != common.CodeNotFound {
		t.Fatalf("code = %d", env.Code)
	}
}
