package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
)

const focusScoreCutoff = 0.5

// ErrSheetNotGraded indicates a report was requested before grading.
var ErrSheetNotGraded = errors.New("sheet has not been graded")

// ReportService renders grading outcomes as per-sheet reports and
// exam-level aggregates.
type ReportService interface {
	SheetReport(ctx context.Context, sheetID uint) (dto.ReportResponse, error)
	ExamReport(ctx context.Context, examID uint) (dto.ExamReportResponse, error)
}

type reportService struct {
	sheets      repository.SheetRepository
	exams       repository.ExamRepository
	evaluations repository.EvaluationRepository
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewReportService constructs the report service. Student-provided
// text is stripped of markup before it is embedded in a report.
func NewReportService(
	sheets repository.SheetRepository,
	exams repository.ExamRepository,
	evaluations repository.EvaluationRepository,
	logger zerolog.Logger,
) ReportService {
	return &reportService{
		sheets:      sheets,
		exams:       exams,
		evaluations: evaluations,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "report_service").Logger(),
		tracer:      otel.Tracer("github.com/scriba-edu/scriba-go-api/internal/service/report"),
		now:         time.Now,
	}
}

func (s *reportService) SheetReport(ctx context.Context, sheetID uint) (dto.ReportResponse, error) {
	ctx, span := s.tracer.Start(ctx, "reports.sheet")
	defer span.End()
	span.SetAttributes(attribute.Int("sheet.id", int(sheetID)))

	sheet, err := s.sheets.GetByID(ctx, sheetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReportResponse{}, ErrSheetNotFound
		}
		return dto.ReportResponse{}, err
	}
	if !sheet.IsGraded() {
		return dto.ReportResponse{}, ErrSheetNotGraded
	}

	evaluations, err := s.evaluations.ListBySheet(ctx, sheetID)
	if err != nil {
		return dto.ReportResponse{}, err
	}

	answers, err := s.sheets.GetAnswers(ctx, sheetID)
	if err != nil {
		return dto.ReportResponse{}, err
	}
	answerText := make(map[string]string, len(answers))
	for _, answer := range answers {
		answerText[answer.Number] = answer.Text
	}

	markdown := s.renderSheetMarkdown(sheet, evaluations, answerText)
	htmlReport := s.renderSheetHTML(sheet, evaluations, answerText)

	s.logger.Info().Uint("sheet_id", sheetID).Int("evaluations", len(evaluations)).Msg("sheet report generated")

	return dto.ReportResponse{
		SheetID:     sheetID,
		Markdown:    markdown,
		HTML:        htmlReport,
		GeneratedAt: s.now().UTC(),
	}, nil
}

func (s *reportService) ExamReport(ctx context.Context, examID uint) (dto.ExamReportResponse, error) {
	ctx, span := s.tracer.Start(ctx, "reports.exam")
	defer span.End()
	span.SetAttributes(attribute.Int("exam.id", int(examID)))

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExamReportResponse{}, ErrExamNotFound
		}
		return dto.ExamReportResponse{}, err
	}

	sheets, err := s.sheets.List(ctx, repository.SheetFilter{ExamID: &examID})
	if err != nil {
		return dto.ExamReportResponse{}, err
	}

	evaluations, err := s.evaluations.ListByExam(ctx, examID)
	if err != nil {
		return dto.ExamReportResponse{}, err
	}

	distribution := make(map[string]int)
	var percentTotal float64
	gradedCount := 0
	for _, sheet := range sheets {
		if !sheet.IsGraded() {
			continue
		}
		gradedCount++
		distribution[sheet.Grade]++
		if sheet.FinalPercent != nil {
			percentTotal += *sheet.FinalPercent
		}
	}

	averagePercent := 0.0
	if gradedCount > 0 {
		averagePercent = percentTotal / float64(gradedCount)
	}

	stats := buildQuestionStats(exam.Questions, evaluations)
	best, worst := bestAndWorstQuestion(stats)

	response := dto.ExamReportResponse{
		ExamID:            exam.ID,
		Title:             exam.Title,
		SheetCount:        len(sheets),
		GradedCount:       gradedCount,
		AveragePercent:    averagePercent,
		GradeDistribution: distribution,
		Questions:         stats,
		BestQuestion:      best,
		WorstQuestion:     worst,
		GeneratedAt:       s.now().UTC(),
	}

	return response, nil
}

func (s *reportService) renderSheetMarkdown(sheet models.AnswerSheet, evaluations []models.AnswerEvaluation, answerText map[string]string) string {
	var b strings.Builder

	b.WriteString("# Grading Report\n\n")
	fmt.Fprintf(&b, "**Exam:** %s\n\n", s.clean(sheet.Exam.Title))
	fmt.Fprintf(&b, "**Student:** %s (%s)\n\n", s.clean(sheet.Student.Name), s.clean(sheet.Student.Email))
	if sheet.GradedAt != nil {
		fmt.Fprintf(&b, "**Graded:** %s\n\n", sheet.GradedAt.UTC().Format(time.RFC3339))
	}
	if sheet.FinalPercent != nil {
		fmt.Fprintf(&b, "**Result:** %.2f%% (%s)\n\n", *sheet.FinalPercent, sheet.Grade)
	}

	focus := make([]models.AnswerEvaluation, 0)

	for _, evaluation := range evaluations {
		number := evaluation.Question.Number
		fmt.Fprintf(&b, "## %s. %s\n\n", number, s.clean(evaluation.Question.Text))

		if text := strings.TrimSpace(answerText[number]); text != "" {
			for _, line := range strings.Split(s.clean(text), "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
			b.WriteString("\n")
		} else {
			b.WriteString("> _No answer provided._\n\n")
		}

		b.WriteString("| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Semantic similarity | %.4f |\n", evaluation.SemanticScore)
		fmt.Fprintf(&b, "| Lexical overlap | %.4f |\n", evaluation.LexicalScore)
		fmt.Fprintf(&b, "| Keyword coverage | %.4f |\n", evaluation.KeywordCoverage)
		fmt.Fprintf(&b, "| Cognitive level | %s (expected %s) |\n", evaluation.ClassifiedLevel, evaluation.ExpectedLevel)
		fmt.Fprintf(&b, "| Level penalty | %.4f |\n", evaluation.LevelPenalty)
		if evaluation.ImageSimilarity != nil {
			fmt.Fprintf(&b, "| Diagram similarity | %.4f |\n", *evaluation.ImageSimilarity)
		}
		fmt.Fprintf(&b, "| Raw score | %.4f |\n", evaluation.RawScore)
		fmt.Fprintf(&b, "| Final score | %.4f (%s) |\n\n", evaluation.FinalScore, evaluation.Grade)

		writeFeedbackSection(&b, "Strengths", feedbackStrings(evaluation.Feedback, "strengths"))
		writeFeedbackSection(&b, "Areas to improve", feedbackStrings(evaluation.Feedback, "weaknesses"))
		writeFeedbackSection(&b, "Suggestions", feedbackStrings(evaluation.Feedback, "suggestions"))

		if len(evaluation.Warnings) > 0 {
			fmt.Fprintf(&b, "_Warnings: %s_\n\n", strings.Join(evaluation.Warnings, "; "))
		}

		if evaluation.FinalScore < focusScoreCutoff {
			focus = append(focus, evaluation)
		}
	}

	if len(focus) > 0 {
		b.WriteString("## Focus Areas\n\n")
		for _, evaluation := range focus {
			line := fmt.Sprintf("- **%s**", evaluation.Question.Number)
			if len(evaluation.MissingKeywords) > 0 {
				line += fmt.Sprintf(": revisit %s", strings.Join(evaluation.MissingKeywords, ", "))
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (s *reportService) renderSheetHTML(sheet models.AnswerSheet, evaluations []models.AnswerEvaluation, answerText map[string]string) string {
	var b strings.Builder

	b.WriteString("<article class=\"grading-report\">\n")
	b.WriteString("<h1>Grading Report</h1>\n")
	fmt.Fprintf(&b, "<p><strong>Exam:</strong> %s</p>\n", s.escape(sheet.Exam.Title))
	fmt.Fprintf(&b, "<p><strong>Student:</strong> %s (%s)</p>\n", s.escape(sheet.Student.Name), s.escape(sheet.Student.Email))
	if sheet.FinalPercent != nil {
		fmt.Fprintf(&b, "<p><strong>Result:</strong> %.2f%% (%s)</p>\n", *sheet.FinalPercent, s.escape(sheet.Grade))
	}

	for _, evaluation := range evaluations {
		number := evaluation.Question.Number
		fmt.Fprintf(&b, "<section>\n<h2>%s. %s</h2>\n", s.escape(number), s.escape(evaluation.Question.Text))

		if text := strings.TrimSpace(answerText[number]); text != "" {
			fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n", s.escape(text))
		} else {
			b.WriteString("<blockquote><em>No answer provided.</em></blockquote>\n")
		}

		b.WriteString("<table>\n")
		fmt.Fprintf(&b, "<tr><td>Semantic similarity</td><td>%.4f</td></tr>\n", evaluation.SemanticScore)
		fmt.Fprintf(&b, "<tr><td>Lexical overlap</td><td>%.4f</td></tr>\n", evaluation.LexicalScore)
		fmt.Fprintf(&b, "<tr><td>Keyword coverage</td><td>%.4f</td></tr>\n", evaluation.KeywordCoverage)
		fmt.Fprintf(&b, "<tr><td>Cognitive level</td><td>%s (expected %s)</td></tr>\n",
			s.escape(evaluation.ClassifiedLevel), s.escape(evaluation.ExpectedLevel))
		fmt.Fprintf(&b, "<tr><td>Final score</td><td>%.4f (%s)</td></tr>\n", evaluation.FinalScore, s.escape(evaluation.Grade))
		b.WriteString("</table>\n")

		s.writeFeedbackHTML(&b, "Strengths", feedbackStrings(evaluation.Feedback, "strengths"))
		s.writeFeedbackHTML(&b, "Areas to improve", feedbackStrings(evaluation.Feedback, "weaknesses"))
		s.writeFeedbackHTML(&b, "Suggestions", feedbackStrings(evaluation.Feedback, "suggestions"))

		b.WriteString("</section>\n")
	}

	b.WriteString("</article>\n")

	return b.String()
}

// clean strips markup from untrusted text for markdown embedding.
func (s *reportService) clean(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(text))
}

// escape strips markup and HTML-escapes untrusted text for HTML embedding.
func (s *reportService) escape(text string) string {
	return html.EscapeString(strings.TrimSpace(s.sanitizer.Sanitize(text)))
}

func writeFeedbackSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s**\n\n", title)
	for _, line := range lines {
		fmt.Fprintf(b, "- %s\n", line)
	}
	b.WriteString("\n")
}

func (s *reportService) writeFeedbackHTML(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "<h3>%s</h3>\n<ul>\n", title)
	for _, line := range lines {
		fmt.Fprintf(b, "<li>%s</li>\n", s.escape(line))
	}
	b.WriteString("</ul>\n")
}

func feedbackStrings(feedback map[string]interface{}, key string) []string {
	raw, ok := feedback[key]
	if !ok {
		return nil
	}

	switch values := raw.(type) {
	case []string:
		return values
	case []interface{}:
		lines := make([]string, 0, len(values))
		for _, value := range values {
			if line, ok := value.(string); ok {
				lines = append(lines, line)
			}
		}
		return lines
	default:
		return nil
	}
}

// buildQuestionStats aggregates evaluations per question, surfacing
// keywords missing from at least half of the graded answers.
func buildQuestionStats(questions []models.ExamQuestion, evaluations []models.AnswerEvaluation) []dto.QuestionStat {
	type aggregate struct {
		count         int
		finalTotal    float64
		coverageTotal float64
		missing       map[string]int
	}

	byQuestion := make(map[uint]*aggregate, len(questions))
	for _, evaluation := range evaluations {
		agg, ok := byQuestion[evaluation.QuestionID]
		if !ok {
			agg = &aggregate{missing: make(map[string]int)}
			byQuestion[evaluation.QuestionID] = agg
		}
		agg.count++
		agg.finalTotal += evaluation.FinalScore
		agg.coverageTotal += evaluation.KeywordCoverage
		for _, keyword := range evaluation.MissingKeywords {
			agg.missing[keyword]++
		}
	}

	stats := make([]dto.QuestionStat, 0, len(questions))
	for _, question := range questions {
		stat := dto.QuestionStat{
			Number: question.Number,
			Text:   question.Text,
		}

		if agg, ok := byQuestion[question.ID]; ok && agg.count > 0 {
			stat.GradedCount = agg.count
			stat.AverageFinal = agg.finalTotal / float64(agg.count)
			stat.AverageCoverage = agg.coverageTotal / float64(agg.count)
			stat.MissingKeywords = frequentKeywords(agg.missing, agg.count)
		}

		stats = append(stats, stat)
	}

	return stats
}

// bestAndWorstQuestion names the graded questions with the highest and
// lowest average final score. Ties keep the earlier question.
func bestAndWorstQuestion(stats []dto.QuestionStat) (string, string) {
	best, worst := -1, -1
	for i, stat := range stats {
		if stat.GradedCount == 0 {
			continue
		}
		if best == -1 || stat.AverageFinal > stats[best].AverageFinal {
			best = i
		}
		if worst == -1 || stat.AverageFinal < stats[worst].AverageFinal {
			worst = i
		}
	}

	if best == -1 {
		return "", ""
	}

	return stats[best].Number, stats[worst].Number
}

func frequentKeywords(counts map[string]int, total int) []string {
	threshold := (total + 1) / 2

	type entry struct {
		keyword string
		count   int
	}
	entries := make([]entry, 0, len(counts))
	for keyword, count := range counts {
		if count >= threshold {
			entries = append(entries, entry{keyword, count})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].keyword < entries[j].keyword
	})

	if len(entries) > 5 {
		entries = entries[:5]
	}

	keywords := make([]string, 0, len(entries))
	for _, item := range entries {
		keywords = append(keywords, item.keyword)
	}

	return keywords
}
