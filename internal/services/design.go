package services

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/observability"
	"github.com/casaviva/decora-backend/internal/repos"
	"github.com/casaviva/decora-backend/internal/types"
)

// DesignService orchestrates a design session end to end: photo submission,
// the analysis pipeline, product selection, and the final render loop. The
// pipeline and the render loop run in the background; progress reaches the
// client over SSE and the chat transcript.
type DesignService interface {
	SubmitPhoto(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID, photo []byte, contentType string) (*types.DesignProject, error)
	GetProject(ctx context.Context, userID, projectID uuid.UUID) (*types.DesignProject, []*types.DetectedItem, error)
	ListProjects(ctx context.Context, userID uuid.UUID) ([]*types.DesignProject, error)
	SelectProduct(ctx context.Context, userID, projectID, itemID, productID uuid.UUID) (*types.DetectedItem, error)
	SubmitFeedback(ctx context.Context, userID, projectID, itemID uuid.UUID, feedback string) error
	RenderFinal(ctx context.Context, userID, projectID uuid.UUID) (*types.DesignProject, error)
}

type designService struct {
	log            *logger.Logger
	projects       repos.DesignProjectRepo
	items          repos.DetectedItemRepo
	products       repos.ProductRepo
	vision         VisionClient
	visionFallback VisionClient
	roi            ROIExtractor
	matcher        MatcherService
	compositor     Compositor
	fetcher        ImageFetcher
	bucket         BucketService
	chat           ChatService
	notifier       DesignNotifier
}

type DesignServiceDeps struct {
	Projects       repos.DesignProjectRepo
	Items          repos.DetectedItemRepo
	Products       repos.ProductRepo
	Vision         VisionClient
	VisionFallback VisionClient
	ROI            ROIExtractor
	Matcher        MatcherService
	Compositor     Compositor
	Fetcher        ImageFetcher
	Bucket         BucketService
	Chat           ChatService
	Notifier       DesignNotifier
}

func NewDesignService(log *logger.Logger, deps DesignServiceDeps) DesignService {
	return &designService{
		log:            log.With("service", "DesignService"),
		projects:       deps.Projects,
		items:          deps.Items,
		products:       deps.Products,
		vision:         deps.Vision,
		visionFallback: deps.VisionFallback,
		roi:            deps.ROI,
		matcher:        deps.Matcher,
		compositor:     deps.Compositor,
		fetcher:        deps.Fetcher,
		bucket:         deps.Bucket,
		chat:           deps.Chat,
		notifier:       deps.Notifier,
	}
}

// EncodeSuggestions marshals suggestion slots for the JSON column. An empty
// slice encodes as null so "no suggestions" reads as absence, not [].
func EncodeSuggestions(slots []types.SuggestionSlot) (datatypes.JSON, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("encode suggestions: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func DecodeSuggestions(raw datatypes.JSON) ([]types.SuggestionSlot, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var slots []types.SuggestionSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	return slots, nil
}

// SubmitPhoto uploads the photo, creates or resets the project, and starts
// the analysis pipeline in the background.
func (s *designService) SubmitPhoto(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID, photo []byte, contentType string) (*types.DesignProject, error) {
	if len(photo) == 0 {
		return nil, fmt.Errorf("empty photo upload")
	}

	key := fmt.Sprintf("designs/%s/source-%s.png", userID, uuid.New())
	photoURL, err := s.bucket.UploadBytes(ctx, key, photo, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload source photo: %w", err)
	}

	var project *types.DesignProject
	if projectID != nil {
		project, err = s.ownedProject(ctx, userID, *projectID)
		if err != nil {
			return nil, err
		}
		if err := s.projects.ResetForSubmission(ctx, nil, project.ID, photoURL); err != nil {
			return nil, fmt.Errorf("reset project: %w", err)
		}
		project.SourcePhotoURL = photoURL
		project.FinalRenderURL = ""
		project.Status = types.ProjectStatusProcessing
	} else {
		project, err = s.projects.Create(ctx, nil, &types.DesignProject{
			UserID:         userID,
			SourcePhotoURL: photoURL,
			Status:         types.ProjectStatusProcessing,
		})
		if err != nil {
			return nil, fmt.Errorf("create project: %w", err)
		}
	}

	go s.runAnalysisPipeline(context.Background(), userID, project)
	return project, nil
}

func (s *designService) GetProject(ctx context.Context, userID, projectID uuid.UUID) (*types.DesignProject, []*types.DetectedItem, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.items.ListByProject(ctx, nil, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("list detected items: %w", err)
	}
	return project, items, nil
}

func (s *designService) ListProjects(ctx context.Context, userID uuid.UUID) ([]*types.DesignProject, error) {
	return s.projects.ListByUser(ctx, nil, userID)
}

// SelectProduct records the user's pick for one detected item. The product
// must be one of the item's persisted suggestions. Once every item either
// has a selection or has no suggestions left to pick from, the project
// advances to suggestions_provided.
func (s *designService) SelectProduct(ctx context.Context, userID, projectID, itemID, productID uuid.UUID) (*types.DetectedItem, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	item, err := s.items.GetByID(ctx, nil, itemID)
	if err != nil {
		return nil, fmt.Errorf("detected item not found: %w", err)
	}
	if item.ProjectID != project.ID {
		return nil, fmt.Errorf("item does not belong to project")
	}

	slots, err := DecodeSuggestions(item.Suggestions)
	if err != nil {
		return nil, err
	}
	var chosen *types.SuggestionSlot
	for i := range slots {
		if slots[i].ProductID == productID {
			chosen = &slots[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("product %s is not a suggestion for this item", productID)
	}

	if err := s.items.UpdateSelection(ctx, nil, item.ID, productID); err != nil {
		return nil, fmt.Errorf("persist selection: %w", err)
	}
	item.SelectedProductID = &productID

	if err := s.maybeAdvanceToSuggestionsProvided(ctx, project); err != nil {
		s.log.Warn("failed to advance project status after selection",
			"project_id", project.ID, "error", err)
	}
	return item, nil
}

func (s *designService) maybeAdvanceToSuggestionsProvided(ctx context.Context, project *types.DesignProject) error {
	items, err := s.items.ListByProject(ctx, nil, project.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.SelectedProductID != nil {
			continue
		}
		slots, err := DecodeSuggestions(item.Suggestions)
		if err != nil {
			return err
		}
		if len(slots) > 0 {
			return nil
		}
	}
	return s.setStatus(ctx, project, types.ProjectStatusSuggestionsProvided)
}

func (s *designService) SubmitFeedback(ctx context.Context, userID, projectID, itemID uuid.UUID, feedback string) error {
	if feedback != types.FeedbackLiked && feedback != types.FeedbackDisliked {
		return fmt.Errorf("feedback must be %q or %q", types.FeedbackLiked, types.FeedbackDisliked)
	}
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return err
	}
	item, err := s.items.GetByID(ctx, nil, itemID)
	if err != nil {
		return fmt.Errorf("detected item not found: %w", err)
	}
	if item.ProjectID != project.ID {
		return fmt.Errorf("item does not belong to project")
	}
	return s.items.UpdateFeedback(ctx, nil, item.ID, feedback)
}

// RenderFinal kicks off the compositing loop over every item with a
// selection. The loop runs in the background; the returned project already
// carries the rendering_final status.
func (s *designService) RenderFinal(ctx context.Context, userID, projectID uuid.UUID) (*types.DesignProject, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !types.CanTransitionStatus(project.Status, types.ProjectStatusRenderingFinal) {
		return nil, fmt.Errorf("project in status %q cannot start a final render", project.Status)
	}

	items, err := s.items.ListByProject(ctx, nil, projectID)
	if err != nil {
		return nil, fmt.Errorf("list detected items: %w", err)
	}
	confirmed := make([]*types.DetectedItem, 0, len(items))
	for _, item := range items {
		if item.SelectedProductID != nil {
			confirmed = append(confirmed, item)
		}
	}
	if len(confirmed) == 0 {
		return nil, fmt.Errorf("no items with a selected product")
	}

	if err := s.setStatus(ctx, project, types.ProjectStatusRenderingFinal); err != nil {
		return nil, err
	}

	go s.runRenderPipeline(context.Background(), userID, project, confirmed)
	return project, nil
}

func (s *designService) ownedProject(ctx context.Context, userID, projectID uuid.UUID) (*types.DesignProject, error) {
	project, err := s.projects.GetByID(ctx, nil, projectID)
	if err != nil {
		return nil, fmt.Errorf("project not found: %w", err)
	}
	if project.UserID != userID {
		return nil, fmt.Errorf("project not found")
	}
	return project, nil
}

// setStatus enforces the forward-only lifecycle before writing.
func (s *designService) setStatus(ctx context.Context, project *types.DesignProject, to string) error {
	if !types.CanTransitionStatus(project.Status, to) {
		return fmt.Errorf("illegal status transition %s -> %s", project.Status, to)
	}
	if err := s.projects.UpdateStatus(ctx, nil, project.ID, to); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	project.Status = to
	return nil
}

// runAnalysisPipeline is the per-submission background job: vision call,
// detection normalization, then per-item ROI extraction, matching and
// persistence. Items are processed one at a time; every external call is
// awaited before the next item starts.
func (s *designService) runAnalysisPipeline(ctx context.Context, userID uuid.UUID, project *types.DesignProject) {
	ctx, span := observability.Tracer().Start(ctx, "design.analysis")
	span.SetAttributes(attribute.String("project.id", project.ID.String()))
	defer span.End()

	s.notifier.AnalysisStarted(userID, project)

	raw, err := s.analyzeWithFallback(ctx, project.SourcePhotoURL)
	if err != nil {
		s.failAnalysis(ctx, userID, project, types.ProjectStatusErrorVision,
			"I could not analyze your photo. Please try submitting it again.", err)
		return
	}

	detections, err := NormalizeDetections(raw)
	if err != nil || len(detections) == 0 {
		if err == nil {
			err = fmt.Errorf("vision model reported zero detections")
		}
		s.failAnalysis(ctx, userID, project, types.ProjectStatusErrorVision,
			"I looked at your photo but could not identify any furniture.", err)
		return
	}

	source, err := s.fetcher.FetchImage(ctx, project.SourcePhotoURL)
	if err != nil {
		s.failAnalysis(ctx, userID, project, types.ProjectStatusFailed,
			"Something went wrong while reading your photo.", err)
		return
	}
	imgW := source.Bounds().Dx()
	imgH := source.Bounds().Dy()

	persisted := make([]*types.DetectedItem, 0, len(detections))
	anySuggestions := false
	for i, det := range detections {
		s.notifier.AnalysisProgress(userID, project.ID, "matching", i+1, len(detections),
			fmt.Sprintf("Finding products for %s", det.Name))

		slots := s.suggestForDetection(ctx, userID, source, project.SourcePhotoURL, det, imgW, imgH)

		encoded, err := EncodeSuggestions(slots)
		if err != nil {
			s.log.Error("failed to encode suggestions, skipping item",
				"project_id", project.ID, "detection", det.Name, "error", err)
			continue
		}
		item, err := s.items.Create(ctx, nil, &types.DetectedItem{
			ProjectID:   project.ID,
			Name:        det.Name,
			Description: det.Description,
			BoundingBox: datatypes.JSON(det.RawBox),
			Suggestions: encoded,
		})
		if err != nil {
			s.log.Error("failed to persist detected item, skipping",
				"project_id", project.ID, "detection", det.Name, "error", err)
			continue
		}
		persisted = append(persisted, item)
		if len(slots) > 0 {
			anySuggestions = true
		}
	}

	status := types.ProjectStatusProcessedNoItems
	if anySuggestions {
		status = types.ProjectStatusAwaitingSelection
	}
	if len(persisted) == 0 {
		status = types.ProjectStatusErrorVision
	}
	if err := s.setStatus(ctx, project, status); err != nil {
		s.log.Error("failed to set post-analysis status", "project_id", project.ID, "error", err)
	}

	if _, err := s.chat.RecordAssistantMessage(ctx, userID, project.ID, s.chat.FormatSuggestions(persisted)); err != nil {
		s.log.Warn("failed to record analysis chat message", "project_id", project.ID, "error", err)
	}
	s.notifier.AnalysisComplete(userID, project, persisted)
}

// suggestForDetection never fails the pipeline: a bad bbox or a dead
// embedding service degrades to fewer signals, not an aborted analysis.
func (s *designService) suggestForDetection(ctx context.Context, userID uuid.UUID, source image.Image, sourceURL string, det Detection, imgW, imgH int) []types.SuggestionSlot {
	var visual []float32

	region, err := s.roi.Region(det.RawBox, imgW, imgH)
	if err != nil {
		s.log.Warn("bounding box unusable, matching on text only",
			"detection", det.Name, "error", err)
	} else {
		visual, err = s.roi.EmbedDetection(ctx, source, sourceURL, det, region)
		if err != nil {
			s.log.Warn("no visual embedding for detection, matching on text only",
				"detection", det.Name, "error", err)
			visual = nil
		}
	}

	slots, err := s.matcher.SuggestProducts(ctx, userID, det, visual)
	if err != nil {
		s.log.Error("matching failed for detection", "detection", det.Name, "error", err)
		return nil
	}
	return slots
}

func (s *designService) analyzeWithFallback(ctx context.Context, photoURL string) (json.RawMessage, error) {
	raw, err := s.vision.AnalyzeImage(ctx, photoURL)
	if err == nil {
		return raw, nil
	}
	if s.visionFallback == nil {
		return nil, err
	}
	s.log.Warn("primary vision vendor failed, trying fallback", "error", err)
	raw, fbErr := s.visionFallback.AnalyzeImage(ctx, photoURL)
	if fbErr != nil {
		return nil, fmt.Errorf("primary: %v; fallback: %w", err, fbErr)
	}
	return raw, nil
}

func (s *designService) failAnalysis(ctx context.Context, userID uuid.UUID, project *types.DesignProject, status, userMessage string, cause error) {
	s.log.Error("analysis pipeline failed",
		"project_id", project.ID, "status", status, "error", cause)
	if err := s.setStatus(ctx, project, status); err != nil {
		s.log.Error("failed to set failure status", "project_id", project.ID, "error", err)
	}
	if _, err := s.chat.RecordAssistantMessage(ctx, userID, project.ID, userMessage); err != nil {
		s.log.Warn("failed to record failure chat message", "project_id", project.ID, "error", err)
	}
	s.notifier.AnalysisError(userID, project.ID, userMessage)
}

// runRenderPipeline threads the base image through one inpainting round per
// confirmed item. A failed item keeps the previous base in play; only an
// unreadable source photo aborts the run.
func (s *designService) runRenderPipeline(ctx context.Context, userID uuid.UUID, project *types.DesignProject, confirmed []*types.DetectedItem) {
	ctx, span := observability.Tracer().Start(ctx, "design.render")
	span.SetAttributes(
		attribute.String("project.id", project.ID.String()),
		attribute.Int("items.confirmed", len(confirmed)),
	)
	defer span.End()

	s.notifier.RenderStarted(userID, project.ID)

	base, err := s.fetcher.FetchImage(ctx, project.SourcePhotoURL)
	if err != nil {
		s.failRender(ctx, userID, project, err)
		return
	}
	baseURL := project.SourcePhotoURL

	for i, item := range confirmed {
		s.notifier.RenderProgress(userID, project.ID, i+1, len(confirmed), item.Name)

		next, nextURL, err := s.renderItem(ctx, project, base, item)
		if err != nil {
			s.log.Warn("compositing failed, keeping previous base",
				"project_id", project.ID, "item_id", item.ID, "item", item.Name, "error", err)
			continue
		}
		base = next
		baseURL = nextURL
		if err := s.items.UpdateCompositeURL(ctx, nil, item.ID, nextURL); err != nil {
			s.log.Warn("failed to persist composite url",
				"project_id", project.ID, "item_id", item.ID, "error", err)
		}
	}

	if err := s.projects.UpdateFinalRender(ctx, nil, project.ID, baseURL); err != nil {
		s.failRender(ctx, userID, project, fmt.Errorf("persist final render: %w", err))
		return
	}
	project.FinalRenderURL = baseURL
	if err := s.setStatus(ctx, project, types.ProjectStatusCompleted); err != nil {
		s.log.Error("failed to set completed status", "project_id", project.ID, "error", err)
	}
	if _, err := s.chat.RecordAssistantMessage(ctx, userID, project.ID,
		"Your new room is ready. Take a look at the final render."); err != nil {
		s.log.Warn("failed to record render chat message", "project_id", project.ID, "error", err)
	}
	s.notifier.RenderComplete(userID, project)
}

// renderItem recomputes the region against the current base because a
// previous composite may have changed the scene's dimensions.
func (s *designService) renderItem(ctx context.Context, project *types.DesignProject, base image.Image, item *types.DetectedItem) (image.Image, string, error) {
	region, err := s.roi.Region(json.RawMessage(item.BoundingBox), base.Bounds().Dx(), base.Bounds().Dy())
	if err != nil {
		return nil, "", fmt.Errorf("recompute region: %w", err)
	}
	product, err := s.products.GetByID(ctx, nil, *item.SelectedProductID)
	if err != nil {
		return nil, "", fmt.Errorf("load selected product: %w", err)
	}
	if strings.TrimSpace(product.ImageURL) == "" {
		return nil, "", fmt.Errorf("selected product has no image")
	}
	return s.compositor.CompositeItem(ctx, project.ID, item.ID, base, region, product.ImageURL, buildInpaintPrompt(product))
}

func (s *designService) failRender(ctx context.Context, userID uuid.UUID, project *types.DesignProject, cause error) {
	s.log.Error("render pipeline failed", "project_id", project.ID, "error", cause)
	if err := s.setStatus(ctx, project, types.ProjectStatusFailed); err != nil {
		s.log.Error("failed to set failed status", "project_id", project.ID, "error", err)
	}
	msg := "Something went wrong while rendering your room. Please try again."
	if _, err := s.chat.RecordAssistantMessage(ctx, userID, project.ID, msg); err != nil {
		s.log.Warn("failed to record render failure chat message", "project_id", project.ID, "error", err)
	}
	s.notifier.RenderError(userID, project.ID, msg)
}

func buildInpaintPrompt(product *types.Product) string {
	prompt := strings.TrimSpace(product.Name)
	if desc := strings.TrimSpace(product.Description); desc != "" {
		prompt = prompt + ", " + desc
	}
	return "a " + prompt + ", photorealistic, matching the room's lighting"
}
