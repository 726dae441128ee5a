package dto

// CreateTaskRequest 创建分析任务请求
type CreateTaskRequest struct {
	RepositoryID int64  `json:"repository_id" binding:"required"`
	Config       string `json:"config,omitempty"`
}

// CreateTaskResponse 创建分析任务响应
type CreateTaskResponse struct {
	TaskID int64 `json:"task_id"`
}

// TaskProgress 任务进度（派生字段，见 progress 包）
type TaskProgress struct {
	Step        string  `json:"step"`
	Percent     float64 `json:"percent"`
	CurrentFile string  `json:"current_file,omitempty"`
}

// TaskDetailResponse 任务详情响应
type TaskDetailResponse struct {
	Task     interface{}       `json:"task"`
	Progress TaskProgress      `json:"progress"`
	Files    []TaskFileSummary `json:"files,omitempty"`
	Readme   string            `json:"readme,omitempty"`
}

// TaskFileSummary 任务文件分析摘要
type TaskFileSummary struct {
	ID        int64  `json:"id"`
	FilePath  string `json:"file_path"`
	Language  string `json:"language,omitempty"`
	CodeLines int    `json:"code_lines"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// UpdateTaskRequest 更新任务请求。只开放受控字段（§6 控制面）
type UpdateTaskRequest struct {
	Status          *string `json:"status,omitempty"`
	CurrentFile     *string `json:"current_file,omitempty"`
	VectorIndexName *string `json:"vector_index_name,omitempty"`
	SuccessfulFiles *int    `json:"successful_files,omitempty"`
	FailedFiles     *int    `json:"failed_files,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}

// QueueSnapshotResponse 队列快照响应
type QueueSnapshotResponse struct {
	PendingTaskIDs []int64 `json:"pending_task_ids"`
	RunningCount   int64   `json:"running_count"`
	MaxRunning     int     `json:"max_running"`
	Position       int     `json:"position,omitempty"`
	EstimatedWaitS float64 `json:"estimated_wait_seconds"`
}
