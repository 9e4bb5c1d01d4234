package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
	"github.com/scriba-edu/scriba-go-api/internal/scoring"
	"github.com/scriba-edu/scriba-go-api/pkg/ai"
)

type sheetRepoStub struct {
	sheet   models.AnswerSheet
	listed  []models.AnswerSheet
	answers []models.SheetAnswer
	trail   []string
}

func (s *sheetRepoStub) List(ctx context.Context, filter repository.SheetFilter) ([]models.AnswerSheet, error) {
	if s.listed != nil {
		return s.listed, nil
	}
	return []models.AnswerSheet{s.sheet}, nil
}

func (s *sheetRepoStub) GetByID(ctx context.Context, id uint) (models.AnswerSheet, error) {
	if id != s.sheet.ID {
		return models.AnswerSheet{}, gorm.ErrRecordNotFound
	}
	return s.sheet, nil
}

func (s *sheetRepoStub) Create(ctx context.Context, sheet *models.AnswerSheet) error {
	sheet.ID = 1
	s.sheet = *sheet
	return nil
}

func (s *sheetRepoStub) Update(ctx context.Context, sheet *models.AnswerSheet) error {
	s.sheet = *sheet
	s.trail = append(s.trail, sheet.Status)
	return nil
}

func (s *sheetRepoStub) ReplaceAnswers(ctx context.Context, sheetID uint, answers []models.SheetAnswer) error {
	s.answers = answers
	return nil
}

func (s *sheetRepoStub) GetAnswers(ctx context.Context, sheetID uint) ([]models.SheetAnswer, error) {
	return s.answers, nil
}

type evaluationRepoStub struct {
	stored []models.AnswerEvaluation
}

func (e *evaluationRepoStub) UpsertBatch(ctx context.Context, evaluations []models.AnswerEvaluation) (int64, error) {
	e.stored = evaluations
	return int64(len(evaluations)), nil
}

func (e *evaluationRepoStub) ListBySheet(ctx context.Context, sheetID uint) ([]models.AnswerEvaluation, error) {
	return e.stored, nil
}

func (e *evaluationRepoStub) ListByStudent(ctx context.Context, studentID uint) ([]models.AnswerEvaluation, error) {
	return e.stored, nil
}

func (e *evaluationRepoStub) ListByExam(ctx context.Context, examID uint) ([]models.AnswerEvaluation, error) {
	return e.stored, nil
}

func (e *evaluationRepoStub) DeleteBySheet(ctx context.Context, sheetID uint) error {
	e.stored = nil
	return nil
}

type stubSimilarity struct {
	score float64
	err   error
	calls int
}

func (s *stubSimilarity) Similarity(ctx context.Context, reference, candidate string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.score, nil
}

type stubOverlap struct {
	score float64
}

func (s stubOverlap) Overlap(ctx context.Context, reference, candidate string) (float64, error) {
	return s.score, nil
}

type progressRecorder struct {
	events []dto.ProgressEvent
}

func (p *progressRecorder) PublishProgress(ctx context.Context, event dto.ProgressEvent) {
	p.events = append(p.events, event)
}

type invalidatorStub struct {
	students []uint
}

func (i *invalidatorStub) InvalidateStudent(ctx context.Context, studentID uint) error {
	i.students = append(i.students, studentID)
	return nil
}

type extractionStub struct {
	calls int
}

func (e *extractionStub) ExtractSheet(ctx context.Context, sheetID uint) ([]dto.SheetAnswerResponse, error) {
	e.calls++
	return nil, nil
}

type comparatorStub struct {
	similarity float64
	err        error
	calls      int
}

func (c *comparatorStub) Compare(ctx context.Context, referenceURL, candidateURL string) (float64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return c.similarity, nil
}

type gradingFixture struct {
	sheets      *sheetRepoStub
	exams       *examRepoStub
	evaluations *evaluationRepoStub
	semantic    *stubSimilarity
	progress    *progressRecorder
	invalidator *invalidatorStub
	service     GradingService
}

func newGradingFixture(t *testing.T, comparator *comparatorStub) *gradingFixture {
	t.Helper()

	exams := &examRepoStub{exam: models.Exam{Title: "Embedded Systems", Status: models.ExamStatusPublished}}
	exams.exam.ID = 7
	exams.questions = []models.ExamQuestion{
		{
			ID: 11, ExamID: 7, Number: "Q1",
			Text:            "Define an interrupt.",
			ReferenceAnswer: "An interrupt is a signal that pauses the processor.",
			ExpectedLevel:   "Remember",
			Keywords:        []string{"interrupt", "signal"},
		},
		{
			ID: 12, ExamID: 7, Number: "Q2",
			Text:            "Define DMA.",
			ReferenceAnswer: "Direct memory access moves data without the CPU.",
			ExpectedLevel:   "Remember",
		},
	}

	sheets := &sheetRepoStub{sheet: models.AnswerSheet{
		ID: 3, ExamID: 7, StudentID: 5, Status: models.SheetStatusExtracted,
	}}
	sheets.answers = []models.SheetAnswer{
		{SheetID: 3, Number: "Q1", Text: "An interrupt is a signal."},
	}

	evaluations := &evaluationRepoStub{}
	semantic := &stubSimilarity{score: 0.9}
	progress := &progressRecorder{}
	invalidator := &invalidatorStub{}

	engine := scoring.NewEngine(semantic, stubOverlap{score: 0.5}, scoring.DefaultWeights(), testLogger())

	var imageComparator ai.ImageComparator
	if comparator != nil {
		imageComparator = comparator
	}

	svc := NewGradingService(sheets, exams, evaluations, engine, imageComparator, &extractionStub{}, progress, invalidator, nil, testLogger())

	return &gradingFixture{
		sheets:      sheets,
		exams:       exams,
		evaluations: evaluations,
		semantic:    semantic,
		progress:    progress,
		invalidator: invalidator,
		service:     svc,
	}
}

func TestGradingServiceGradeSheet(t *testing.T) {
	fixture := newGradingFixture(t, nil)

	result, err := fixture.service.GradeSheet(context.Background(), 3)
	require.NoError(t, err)

	require.Equal(t, models.SheetStatusGraded, result.Status)
	require.Equal(t, 2, result.QuestionCount)
	require.Equal(t, 2, result.GradedCount)
	require.Len(t, fixture.evaluations.stored, 2)

	answered := fixture.evaluations.stored[0]
	require.Equal(t, 0.9, answered.SemanticScore)
	require.Equal(t, 0.5, answered.LexicalScore)
	require.Equal(t, 1.0, answered.KeywordCoverage)
	require.Equal(t, "Remember", answered.ClassifiedLevel)
	require.Equal(t, 0.0, answered.LevelPenalty)
	require.InDelta(t, scoring.Curve(0.76), answered.FinalScore, 1e-9)

	blank := fixture.evaluations.stored[1]
	require.Equal(t, 0.0, blank.SemanticScore)
	require.Equal(t, 0.0, blank.FinalScore)
	require.Equal(t, "Remember", blank.ClassifiedLevel)

	// Only the answered question reached the embedding provider.
	require.Equal(t, 1, fixture.semantic.calls)

	percent := scoring.Curve(0.76) / 2 * 100
	require.NotNil(t, fixture.sheets.sheet.FinalPercent)
	require.InDelta(t, percent, *fixture.sheets.sheet.FinalPercent, 1e-9)
	require.Equal(t, scoring.LetterGrade(percent), fixture.sheets.sheet.Grade)
	require.Equal(t, []string{models.SheetStatusGrading, models.SheetStatusGraded}, fixture.sheets.trail)

	require.Len(t, fixture.progress.events, 4)
	require.Equal(t, dto.EventGradingStarted, fixture.progress.events[0].Type)
	require.Equal(t, dto.EventGradingQuestion, fixture.progress.events[1].Type)
	require.Equal(t, "Q1", fixture.progress.events[1].Question)
	require.Equal(t, dto.EventGradingCompleted, fixture.progress.events[3].Type)

	require.Equal(t, []uint{5}, fixture.invalidator.students)
}

func TestGradingServiceGradeSheetGuards(t *testing.T) {
	fixture := newGradingFixture(t, nil)

	_, err := fixture.service.GradeSheet(context.Background(), 99)
	require.ErrorIs(t, err, ErrSheetNotFound)

	fixture.sheets.sheet.Status = models.SheetStatusReceived
	_, err = fixture.service.GradeSheet(context.Background(), 3)
	require.ErrorIs(t, err, ErrSheetNotExtracted)

	fixture.sheets.sheet.Status = models.SheetStatusExtracted
	fixture.exams.questions = nil
	_, err = fixture.service.GradeSheet(context.Background(), 3)
	require.ErrorIs(t, err, ErrExamHasNoQuestions)
}

func TestGradingServiceSemanticFailureDegrades(t *testing.T) {
	fixture := newGradingFixture(t, nil)
	fixture.semantic.err = errors.New("embedding quota exhausted")

	_, err := fixture.service.GradeSheet(context.Background(), 3)
	require.NoError(t, err)

	answered := fixture.evaluations.stored[0]
	require.Equal(t, 0.0, answered.SemanticScore)
	require.Len(t, answered.Warnings, 1)
	require.Contains(t, answered.Warnings[0], "semantic similarity unavailable")
	require.Greater(t, answered.FinalScore, 0.0)
}

func TestGradingServiceComparesDiagrams(t *testing.T) {
	comparator := &comparatorStub{similarity: 0.8}
	fixture := newGradingFixture(t, comparator)
	fixture.exams.questions[0].DiagramURL = "https://cdn.example.com/ref-q1.png"
	fixture.sheets.answers[0].HasDiagram = true
	fixture.sheets.answers[0].DiagramURL = "https://cdn.example.com/sheet-q1.png"

	_, err := fixture.service.GradeSheet(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 1, comparator.calls)

	answered := fixture.evaluations.stored[0]
	require.NotNil(t, answered.ImageSimilarity)
	require.Equal(t, 0.8, *answered.ImageSimilarity)
	require.InDelta(t, scoring.Curve(0.76+0.1*0.8), answered.FinalScore, 1e-9)
}

func TestGradingServiceDiagramFailureBecomesWarning(t *testing.T) {
	comparator := &comparatorStub{err: errors.New("sidecar unreachable")}
	fixture := newGradingFixture(t, comparator)
	fixture.exams.questions[0].DiagramURL = "https://cdn.example.com/ref-q1.png"
	fixture.sheets.answers[0].HasDiagram = true
	fixture.sheets.answers[0].DiagramURL = "https://cdn.example.com/sheet-q1.png"

	_, err := fixture.service.GradeSheet(context.Background(), 3)
	require.NoError(t, err)

	answered := fixture.evaluations.stored[0]
	require.Nil(t, answered.ImageSimilarity)
	require.Contains(t, answered.Warnings[0], "image similarity unavailable")
	require.InDelta(t, scoring.Curve(0.76), answered.FinalScore, 1e-9)
}

func TestGradingServiceMarksFailureOnBadStoredLevel(t *testing.T) {
	fixture := newGradingFixture(t, nil)
	fixture.exams.questions[0].ExpectedLevel = "Synthesize"

	_, err := fixture.service.GradeSheet(context.Background(), 3)
	require.ErrorIs(t, err, bloom.ErrInvalidLevel)

	require.Equal(t, models.SheetStatusFailed, fixture.sheets.sheet.Status)
	require.NotEmpty(t, fixture.sheets.sheet.FailureReason)

	last := fixture.progress.events[len(fixture.progress.events)-1]
	require.Equal(t, dto.EventGradingFailed, last.Type)
}

func TestGradingServiceScore(t *testing.T) {
	fixture := newGradingFixture(t, nil)

	level := "Remember"
	response, err := fixture.service.Score(context.Background(), dto.ScoreRequest{
		Question:        "Define an interrupt.",
		ReferenceAnswer: "An interrupt is a signal that pauses the processor.",
		CandidateAnswer: "An interrupt is a signal.",
		ExpectedLevel:   &level,
		Keywords:        []string{"interrupt", "signal"},
	})
	require.NoError(t, err)
	require.Equal(t, 0.9, response.SemanticScore)
	require.Equal(t, 1.0, response.KeywordCoverage)
	require.Equal(t, "Remember", response.ClassifiedLevel)
	require.Equal(t, "Remember", response.ExpectedLevel)
	require.NotEmpty(t, response.Grade)

	bogus := "Synthesize"
	_, err = fixture.service.Score(context.Background(), dto.ScoreRequest{
		Question:        "x",
		ReferenceAnswer: "y",
		CandidateAnswer: "z",
		ExpectedLevel:   &bogus,
	})
	require.ErrorIs(t, err, bloom.ErrInvalidLevel)
}

func TestGradingServiceScoreEmptyCandidate(t *testing.T) {
	fixture := newGradingFixture(t, nil)

	response, err := fixture.service.Score(context.Background(), dto.ScoreRequest{
		Question:        "Define an interrupt.",
		ReferenceAnswer: "An interrupt is a signal.",
		CandidateAnswer: "   ",
	})
	require.NoError(t, err)
	require.Equal(t, 0.0, response.FinalScore)
	require.Equal(t, "Remember", response.ClassifiedLevel)
	require.Equal(t, "Understand", response.ExpectedLevel)
	require.Equal(t, 0, fixture.semantic.calls)
}
