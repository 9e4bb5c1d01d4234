package dto

import "time"

// ReportResponse wraps a per-sheet grading report. Markdown is the
// canonical format; HTML is the sanitized rendering for browsers.
type ReportResponse struct {
	SheetID     uint      `json:"sheet_id"`
	Markdown    string    `json:"markdown"`
	HTML        string    `json:"html,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// QuestionStat aggregates evaluation results for one question across
// all graded sheets of an exam.
type QuestionStat struct {
	Number          string   `json:"number"`
	Text            string   `json:"text"`
	GradedCount     int      `json:"graded_count"`
	AverageFinal    float64  `json:"average_final_score"`
	AverageCoverage float64  `json:"average_keyword_coverage"`
	MissingKeywords []string `json:"frequently_missing_keywords,omitempty"`
}

// ExamReportResponse is the cohort-level view of one exam. Best and
// worst name the question numbers with the highest and lowest average
// final score among graded questions.
type ExamReportResponse struct {
	ExamID            uint           `json:"exam_id"`
	Title             string         `json:"title"`
	SheetCount        int            `json:"sheet_count"`
	GradedCount       int            `json:"graded_count"`
	AveragePercent    float64        `json:"average_percent"`
	GradeDistribution map[string]int `json:"grade_distribution"`
	Questions         []QuestionStat `json:"questions"`
	BestQuestion      string         `json:"best_question,omitempty"`
	WorstQuestion     string         `json:"worst_question,omitempty"`
	GeneratedAt       time.Time      `json:"generated_at"`
}
