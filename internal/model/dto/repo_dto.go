package dto

// CreateRepoFromGitRequest 从 Git 地址导入仓库
type CreateRepoFromGitRequest struct {
	RepoURL     string `json:"repo_url" binding:"required,url"`
	DisplayName string `json:"display_name,omitempty"`
}

// DeleteRepoRequest 删除仓库请求参数
type DeleteRepoRequest struct {
	Soft bool `form:"soft"`
}
