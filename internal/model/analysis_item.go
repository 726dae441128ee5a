package model

// AnalysisItem is one LLM-surfaced finding attached to a successfully
// analyzed file. Items are appended during Analyze and never mutated.
type AnalysisItem struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	FileAnalysisID int64  `gorm:"not null;index" json:"file_analysis_id"`
	Title          string `gorm:"size:512;not null" json:"title"`
	Description    string `gorm:"type:text" json:"description,omitempty"`
	SourceExcerpt  string `gorm:"size:1024" json:"source_excerpt,omitempty"`
	Language       string `gorm:"size:64" json:"language,omitempty"`
	CodeSnippet    string `gorm:"type:text" json:"code_snippet,omitempty"`
	StartLine      int    `json:"start_line,omitempty"`
	EndLine        int    `json:"end_line,omitempty"`
}

func (AnalysisItem) TableName() string {
	return "orch_analysis_items"
}
