package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"learnhub/internal/db"
	"learnhub/internal/extract"
	"learnhub/internal/logger"
	"learnhub/internal/models"
	"learnhub/internal/youtube"
)

// --- Mocks ---

type MockQuizStore struct {
	mock.Mock
}

func (m *MockQuizStore) CheckQuizQuota(ctx context.Context, userID string) (*models.Quota, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quota), args.Error(1)
}

func (m *MockQuizStore) ListCategories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockQuizStore) SaveQuiz(ctx context.Context, arg db.CreateQuizParams) (*models.Quiz, error) {
	args := m.Called(ctx, arg)
	if fn, ok := args.Get(0).(func(context.Context, db.CreateQuizParams) *models.Quiz); ok {
		return fn(ctx, arg), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

type fakeEngine struct {
	mu    sync.Mutex
	reqs  []models.GenerationRequest
	batch *models.QuestionBatch
	err   error
}

func (f *fakeEngine) Generate(_ context.Context, req models.GenerationRequest) (*models.QuestionBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.batch, f.err
}

type fakeAnnotator struct {
	title      string
	categories []string
	err        error
}

func (f *fakeAnnotator) Title(context.Context, string, *models.QuestionBatch) string { return f.title }

func (f *fakeAnnotator) Categorize(context.Context, *models.QuestionBatch, []string) ([]string, error) {
	return f.categories, f.err
}

type fakeTranscripts struct {
	link, lang string
}

func (f *fakeTranscripts) Fetch(_ context.Context, link, lang string) (*youtube.Transcript, error) {
	f.link, f.lang = link, lang
	return &youtube.Transcript{VideoID: "abc", Text: "captions about the cell cycle"}, nil
}

type steps struct {
	mu   sync.Mutex
	list []string
}

func (s *steps) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, step)
}

func batchOf(n, requested int) *models.QuestionBatch {
	b := &models.QuestionBatch{Requested: requested, Degraded: n < requested}
	for i := 0; i < n; i++ {
		b.Questions = append(b.Questions, models.Question{
			Question: fmt.Sprintf("Q%d", i), Options: []string{"a", "b", "c", "d"}, Answer: i % 4,
		})
	}
	return b
}

func options() Options {
	return Options{UserID: "user-1", IsPublic: true, Count: 3, Language: "English", Difficulty: models.DifficultyMedium}
}

func savedQuiz(arg db.CreateQuizParams) *models.Quiz {
	return &models.Quiz{
		ID: uuid.New(), UserID: arg.UserID, Title: arg.Title, IsPublic: arg.IsPublic,
		Difficulty: arg.Difficulty, Language: arg.Language, Categories: arg.Categories, Questions: arg.Questions,
	}
}

func expectSave(store *MockQuizStore) {
	store.On("SaveQuiz", mock.Anything, mock.Anything).
		Return(func(_ context.Context, arg db.CreateQuizParams) *models.Quiz { return savedQuiz(arg) }, nil).Once()
}

func TestFromTextSavesAnnotatedQuiz(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{UserID: "user-1"}, nil)
	store.On("ListCategories", mock.Anything).Return([]string{"Biology", "History"}, nil)
	store.On("SaveQuiz", mock.Anything, mock.MatchedBy(func(arg db.CreateQuizParams) bool {
		return arg.UserID == "user-1" && arg.Title == "Cells" && arg.IsPublic &&
			len(arg.Questions) == 3 && assert.ObjectsAreEqual([]string{"Biology"}, arg.Categories)
	})).Return(&models.Quiz{ID: uuid.New(), Title: "Cells"}, nil).Once()

	engine := &fakeEngine{batch: batchOf(3, 3)}
	p := New(engine, &fakeAnnotator{title: "Cells", categories: []string{"Biology"}}, store, logger.Nop())
	progress := &steps{}

	out, err := p.FromText(context.Background(), options(), "  The cell is the unit of life.  ", progress.record)
	require.NoError(t, err)
	assert.Equal(t, "Cells", out.Quiz.Title)
	assert.Equal(t, 3, out.Generated)
	assert.Equal(t, 3, out.Requested)
	assert.False(t, out.Degraded)
	assert.Equal(t, []string{StepGenerating, StepAnnotating, StepSaving}, progress.list)

	require.Len(t, engine.reqs, 1)
	assert.Equal(t, models.SourceText, engine.reqs[0].Source.Kind)
	assert.Equal(t, "The cell is the unit of life.", engine.reqs[0].Source.Text)
	store.AssertExpectations(t)
}

func TestFromTextQuotaExceeded(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").
		Return(nil, &db.QuotaExceededError{Resource: "quiz", Used: 100, Limit: 100})
	engine := &fakeEngine{batch: batchOf(3, 3)}
	p := New(engine, &fakeAnnotator{}, store, logger.Nop())

	_, err := p.FromText(context.Background(), options(), "text", func(string) {})
	var exceeded *db.QuotaExceededError
	assert.True(t, errors.As(err, &exceeded))
	assert.Empty(t, engine.reqs)
	store.AssertNotCalled(t, "SaveQuiz", mock.Anything, mock.Anything)
}

func TestFromTextRequiresUser(t *testing.T) {
	p := New(&fakeEngine{}, &fakeAnnotator{}, new(MockQuizStore), logger.Nop())
	opts := options()
	opts.UserID = ""

	_, err := p.FromText(context.Background(), opts, "text", func(string) {})
	assert.ErrorContains(t, err, "user_id")
}

func TestEmptyBatchIsAnError(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{}, nil)
	p := New(&fakeEngine{batch: &models.QuestionBatch{Requested: 3, Degraded: true}}, &fakeAnnotator{}, store, logger.Nop())

	_, err := p.FromText(context.Background(), options(), "text", func(string) {})
	assert.ErrorIs(t, err, ErrNoQuestions)
	store.AssertNotCalled(t, "SaveQuiz", mock.Anything, mock.Anything)
}

func TestDegradedBatchIsReported(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{}, nil)
	store.On("ListCategories", mock.Anything).Return([]string{"Biology"}, nil)
	expectSave(store)
	opts := options()
	opts.Count = 5
	p := New(&fakeEngine{batch: batchOf(2, 5)}, &fakeAnnotator{title: "T", categories: []string{}}, store, logger.Nop())

	out, err := p.FromText(context.Background(), opts, "text", func(string) {})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, 5, out.Requested)
	assert.Equal(t, 2, out.Generated)
	assert.Len(t, out.Quiz.Questions, 2)
}

func TestCategorizeFailureIsNotFatal(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{}, nil)
	store.On("ListCategories", mock.Anything).Return([]string{"Biology"}, nil)
	expectSave(store)
	p := New(&fakeEngine{batch: batchOf(3, 3)}, &fakeAnnotator{title: "T", err: errors.New("boom")}, store, logger.Nop())

	out, err := p.FromText(context.Background(), options(), "text", func(string) {})
	require.NoError(t, err)
	assert.Equal(t, []string{}, out.Quiz.Categories)
}

func TestEngineErrorPropagates(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{}, nil)
	p := New(&fakeEngine{err: context.DeadlineExceeded}, &fakeAnnotator{}, store, logger.Nop())

	_, err := p.FromText(context.Background(), options(), "text", func(string) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFromFileRoutesByType(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{}, nil)
	store.On("ListCategories", mock.Anything).Return([]string{}, nil)
	store.On("SaveQuiz", mock.Anything, mock.Anything).
		Return(func(_ context.Context, arg db.CreateQuizParams) *models.Quiz { return savedQuiz(arg) }, nil)
	engine := &fakeEngine{batch: batchOf(3, 3)}
	p := New(engine, &fakeAnnotator{title: "T"}, store, logger.Nop())
	ctx := context.Background()

	_, err := p.FromFile(ctx, options(), "notes.md", []byte("# Cells\nThe cell."), func(string) {})
	require.NoError(t, err)
	_, err = p.FromFile(ctx, options(), "photo.JPG", []byte{0xff, 0xd8, 0xff}, func(string) {})
	require.NoError(t, err)

	require.Len(t, engine.reqs, 2)
	assert.Equal(t, models.SourceText, engine.reqs[0].Source.Kind)
	assert.Equal(t, "# Cells\nThe cell.", engine.reqs[0].Source.Text)
	assert.Equal(t, models.SourceImages, engine.reqs[1].Source.Kind)
	assert.Equal(t, "image/jpeg", engine.reqs[1].Source.Images[0].MIMEType)

	_, err = p.FromFile(ctx, options(), "slides.pptx", []byte("x"), func(string) {})
	var unsupported *extract.UnsupportedTypeError
	assert.True(t, errors.As(err, &unsupported))
	assert.Equal(t, ".pptx", unsupported.Ext)
}

func TestFromFilePDFModeFileNeedsUploader(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{}, nil)
	p := New(&fakeEngine{}, &fakeAnnotator{}, store, logger.Nop())
	opts := options()
	opts.PDFMode = PDFModeFile

	_, err := p.FromFile(context.Background(), opts, "book.pdf", []byte("%PDF-1.4"), func(string) {})
	assert.ErrorIs(t, err, ErrFileModeUnavailable)
}

func TestFromLinkYouTubeUsesTranscript(t *testing.T) {
	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{}, nil)
	store.On("ListCategories", mock.Anything).Return([]string{}, nil)
	expectSave(store)
	engine := &fakeEngine{batch: batchOf(3, 3)}
	tr := &fakeTranscripts{}
	p := New(engine, &fakeAnnotator{title: "T"}, store, logger.Nop(), WithTranscripts(tr))
	opts := options()
	opts.Language = "French"

	_, err := p.FromLink(context.Background(), opts, "https://youtu.be/dQw4w9WgXcQ", func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "fr", tr.lang)
	require.Len(t, engine.reqs, 1)
	assert.Equal(t, "captions about the cell cycle", engine.reqs[0].Source.Text)
	assert.Equal(t, "French", engine.reqs[0].Language)
}

func TestFromLinkWebPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><title>Cells</title></head><body><p>Cells divide by mitosis.</p></body></html>`)
	}))
	defer srv.Close()

	store := new(MockQuizStore)
	store.On("CheckQuizQuota", mock.Anything, "user-1").Return(&models.Quota{}, nil)
	store.On("ListCategories", mock.Anything).Return([]string{}, nil)
	expectSave(store)
	engine := &fakeEngine{batch: batchOf(3, 3)}
	p := New(engine, &fakeAnnotator{title: "T"}, store, logger.Nop(), WithHTTPClient(srv.Client()))
	progress := &steps{}

	_, err := p.FromLink(context.Background(), options(), srv.URL+"/article", progress.record)
	require.NoError(t, err)
	require.Len(t, engine.reqs, 1)
	assert.Contains(t, engine.reqs[0].Source.Text, "Cells divide by mitosis.")
	assert.Equal(t, StepExtracting, progress.list[0])
}

func TestParsePDFMode(t *testing.T) {
	for in, want := range map[string]PDFMode{"": PDFModeText, "text": PDFModeText, " FILE ": PDFModeFile} {
		got, err := ParsePDFMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePDFMode("image")
	assert.Error(t, err)
}

func TestStageWritesTempFile(t *testing.T) {
	p := New(&fakeEngine{}, &fakeAnnotator{}, new(MockQuizStore), logger.Nop(), WithTempDir(t.TempDir()))
	path, err := p.stage("Book.PDF", []byte("data"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pdf"))
}
