package repos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/types"
)

// The production schema relies on uuid_generate_v4() and now() defaults,
// which sqlite cannot evaluate, so the test schema is created by hand and
// every row gets an explicit id. SearchText stays untested here; it runs
// postgres-only FTS SQL.
var testSchema = []string{
	`CREATE TABLE "user" (
		id text PRIMARY KEY,
		email text NOT NULL UNIQUE,
		password text NOT NULL,
		first_name text NOT NULL,
		last_name text NOT NULL,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE user_token (
		id text PRIMARY KEY,
		user_id text NOT NULL,
		token_hash text NOT NULL,
		expires_at datetime NOT NULL,
		revoked numeric NOT NULL DEFAULT false,
		created_at datetime
	)`,
	`CREATE TABLE design_project (
		id text PRIMARY KEY,
		user_id text NOT NULL,
		source_photo_url text NOT NULL,
		final_render_url text,
		status text NOT NULL,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE detected_item (
		id text PRIMARY KEY,
		project_id text NOT NULL,
		name text NOT NULL,
		description text,
		bounding_box text,
		suggestions text,
		selected_product_id text,
		feedback text,
		composite_image_url text,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE product (
		id text PRIMARY KEY,
		owner_id text NOT NULL,
		name text NOT NULL,
		category text,
		description text,
		image_url text,
		search_text text,
		has_embedding numeric NOT NULL DEFAULT false,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE chat_message (
		id text PRIMARY KEY,
		project_id text NOT NULL,
		role text NOT NULL,
		content text NOT NULL,
		created_at datetime
	)`,
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repos.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range testSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestDesignProjectRepoLifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewDesignProjectRepo(db, testLogger(t))
	ctx := context.Background()
	userID := uuid.New()

	project, err := repo.Create(ctx, nil, &types.DesignProject{
		ID:             uuid.New(),
		UserID:         userID,
		SourcePhotoURL: "https://bucket.test/a.png",
		Status:         types.ProjectStatusProcessing,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.UpdateStatus(ctx, nil, project.ID, types.ProjectStatusAwaitingSelection); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := repo.UpdateFinalRender(ctx, nil, project.ID, "https://bucket.test/final.png"); err != nil {
		t.Fatalf("UpdateFinalRender: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, project.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ProjectStatusAwaitingSelection {
		t.Fatalf("status: want=%s got=%s", types.ProjectStatusAwaitingSelection, got.Status)
	}
	if got.FinalRenderURL != "https://bucket.test/final.png" {
		t.Fatalf("final render url: got=%s", got.FinalRenderURL)
	}

	listed, err := repo.ListByUser(ctx, nil, userID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListByUser: %v len=%d", err, len(listed))
	}
	if others, _ := repo.ListByUser(ctx, nil, uuid.New()); len(others) != 0 {
		t.Fatalf("ListByUser leaked another user's projects")
	}
}

func TestDesignProjectRepoResetClearsItems(t *testing.T) {
	db := testDB(t)
	projects := NewDesignProjectRepo(db, testLogger(t))
	items := NewDetectedItemRepo(db, testLogger(t))
	ctx := context.Background()

	project, err := projects.Create(ctx, nil, &types.DesignProject{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		SourcePhotoURL: "https://bucket.test/a.png",
		FinalRenderURL: "https://bucket.test/final.png",
		Status:         types.ProjectStatusCompleted,
	})
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}
	if _, err := items.Create(ctx, nil, &types.DetectedItem{
		ID:        uuid.New(),
		ProjectID: project.ID,
		Name:      "sofa",
	}); err != nil {
		t.Fatalf("Create item: %v", err)
	}

	if err := projects.ResetForSubmission(ctx, nil, project.ID, "https://bucket.test/b.png"); err != nil {
		t.Fatalf("ResetForSubmission: %v", err)
	}

	got, err := projects.GetByID(ctx, nil, project.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ProjectStatusProcessing {
		t.Fatalf("status after reset: got=%s", got.Status)
	}
	if got.SourcePhotoURL != "https://bucket.test/b.png" || got.FinalRenderURL != "" {
		t.Fatalf("reset did not replace urls: %+v", got)
	}
	remaining, err := items.ListByProject(ctx, nil, project.ID)
	if err != nil || len(remaining) != 0 {
		t.Fatalf("items survived reset: %v len=%d", err, len(remaining))
	}
}

func TestDetectedItemRepoUpdates(t *testing.T) {
	db := testDB(t)
	repo := NewDetectedItemRepo(db, testLogger(t))
	ctx := context.Background()
	projectID := uuid.New()

	first, err := repo.Create(ctx, nil, &types.DetectedItem{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      "sofa",
		CreatedAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := repo.Create(ctx, nil, &types.DetectedItem{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      "mesa",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	productID := uuid.New()
	if err := repo.UpdateSelection(ctx, nil, first.ID, productID); err != nil {
		t.Fatalf("UpdateSelection: %v", err)
	}
	if err := repo.UpdateFeedback(ctx, nil, first.ID, types.FeedbackLiked); err != nil {
		t.Fatalf("UpdateFeedback: %v", err)
	}
	if err := repo.UpdateCompositeURL(ctx, nil, second.ID, "https://gen.test/c.png"); err != nil {
		t.Fatalf("UpdateCompositeURL: %v", err)
	}

	listed, err := repo.ListByProject(ctx, nil, projectID)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(listed) != 2 || listed[0].Name != "sofa" || listed[1].Name != "mesa" {
		t.Fatalf("list order: %+v", listed)
	}
	if listed[0].SelectedProductID == nil || *listed[0].SelectedProductID != productID {
		t.Fatalf("selection not persisted: %+v", listed[0])
	}
	if listed[0].Feedback != types.FeedbackLiked {
		t.Fatalf("feedback not persisted: %+v", listed[0])
	}
	if listed[1].CompositeImageURL != "https://gen.test/c.png" {
		t.Fatalf("composite url not persisted: %+v", listed[1])
	}
}

func TestProductRepoEmbeddingBacklog(t *testing.T) {
	db := testDB(t)
	repo := NewProductRepo(db, testLogger(t))
	ctx := context.Background()
	ownerID := uuid.New()

	withImage := &types.Product{ID: uuid.New(), OwnerID: ownerID, Name: "Sofa Oslo", Category: "sofa", ImageURL: "https://cdn.test/a.png"}
	noImage := &types.Product{ID: uuid.New(), OwnerID: ownerID, Name: "Sofa Fantasma", Category: "sofa"}
	if _, err := repo.Create(ctx, nil, []*types.Product{withImage, noImage}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	pending, err := repo.ListWithoutEmbedding(ctx, nil, ownerID, 10)
	if err != nil {
		t.Fatalf("ListWithoutEmbedding: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != withImage.ID {
		t.Fatalf("backlog should only hold products with an image: %+v", pending)
	}

	if err := repo.MarkEmbedded(ctx, nil, withImage.ID); err != nil {
		t.Fatalf("MarkEmbedded: %v", err)
	}
	pending, err = repo.ListWithoutEmbedding(ctx, nil, ownerID, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("backlog not drained: %v len=%d", err, len(pending))
	}
}

func TestProductRepoCreateFillsSearchText(t *testing.T) {
	db := testDB(t)
	repo := NewProductRepo(db, testLogger(t))
	ctx := context.Background()

	product := &types.Product{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Name:        "Mesa Rustica",
		Category:    "mesa",
		Description: "madeira maciça",
	}
	if _, err := repo.Create(ctx, nil, []*types.Product{product}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, product.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.SearchText != "Mesa Rustica mesa madeira maciça" {
		t.Fatalf("search text: got=%q", got.SearchText)
	}
}

func TestProductRepoGetByIDs(t *testing.T) {
	db := testDB(t)
	repo := NewProductRepo(db, testLogger(t))
	ctx := context.Background()

	a := &types.Product{ID: uuid.New(), OwnerID: uuid.New(), Name: "A"}
	b := &types.Product{ID: uuid.New(), OwnerID: uuid.New(), Name: "B"}
	if _, err := repo.Create(ctx, nil, []*types.Product{a, b}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByIDs(ctx, nil, []uuid.UUID{a.ID, uuid.New()})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("lookup: %+v", got)
	}
	if empty, err := repo.GetByIDs(ctx, nil, nil); err != nil || len(empty) != 0 {
		t.Fatalf("empty id list should be a no-op: %v %+v", err, empty)
	}
}

func TestUserTokenRepoRevocation(t *testing.T) {
	db := testDB(t)
	repo := NewUserTokenRepo(db, testLogger(t))
	ctx := context.Background()
	userID := uuid.New()

	token, err := repo.Create(ctx, nil, &types.UserToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: "hash-a",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByHash(ctx, nil, "hash-a")
	if err != nil || got.ID != token.ID {
		t.Fatalf("GetByHash: %v %+v", err, got)
	}

	if err := repo.RevokeByUser(ctx, nil, userID); err != nil {
		t.Fatalf("RevokeByUser: %v", err)
	}
	if _, err := repo.GetByHash(ctx, nil, "hash-a"); err == nil {
		t.Fatalf("revoked token still resolvable")
	}
}

func TestUserRepoEmailLookup(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepo(db, testLogger(t))
	ctx := context.Background()

	user := &types.User{
		ID:        uuid.New(),
		Email:     "ana@example.com",
		Password:  "bcrypt-hash",
		FirstName: "Ana",
		LastName:  "Souza",
	}
	if _, err := repo.Create(ctx, nil, []*types.User{user}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByEmail(ctx, nil, "ana@example.com")
	if err != nil || got.ID != user.ID {
		t.Fatalf("GetByEmail: %v %+v", err, got)
	}

	exists, err := repo.EmailExists(ctx, nil, "ana@example.com")
	if err != nil || !exists {
		t.Fatalf("EmailExists: %v %v", err, exists)
	}
	exists, err = repo.EmailExists(ctx, nil, "bob@example.com")
	if err != nil || exists {
		t.Fatalf("EmailExists for unknown email: %v %v", err, exists)
	}
}

func TestChatMessageRepoTranscriptOrder(t *testing.T) {
	db := testDB(t)
	repo := NewChatMessageRepo(db, testLogger(t))
	ctx := context.Background()
	projectID := uuid.New()

	base := time.Now().Add(-time.Minute)
	for i, content := range []string{"first", "second", "third"} {
		if _, err := repo.Create(ctx, nil, &types.ChatMessage{
			ID:        uuid.New(),
			ProjectID: projectID,
			Role:      types.ChatRoleAssistant,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.ListByProject(ctx, nil, projectID)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(got) != 3 || got[0].Content != "first" || got[2].Content != "third" {
		t.Fatalf("transcript order: %+v", got)
	}
}
