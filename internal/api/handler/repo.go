package handler

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/repoanalyzer/config"
	"github.com/qs3c/repoanalyzer/internal/api/middleware"
	"github.com/qs3c/repoanalyzer/internal/model/dto"
	"github.com/qs3c/repoanalyzer/internal/pkg/response"
	"github.com/qs3c/repoanalyzer/internal/service"
)

type RepoHandler struct {
	repoService *service.RepoService
	cfg         *config.Config
}

func NewRepoHandler(repoService *service.RepoService, cfg *config.Config) *RepoHandler {
	return &RepoHandler{
		repoService: repoService,
		cfg:         cfg,
	}
}

// Upload 上传 ZIP 导入仓库
// POST /api/v1/repositories/upload
func (h *RepoHandler) Upload(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "请上传文件")
		return
	}
	defer file.Close()

	if header.Size > h.cfg.Upload.MaxSize {
		response.ParamError(c, "文件过大")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	allowed := false
	for _, allowedExt := range h.cfg.Upload.AllowedExtensions {
		if ext == allowedExt {
			allowed = true
			break
		}
	}
	if !allowed {
		response.ParamError(c, "仅支持 ZIP 格式")
		return
	}

	tempFile, err := os.CreateTemp("", "repo-upload-*.zip")
	if err != nil {
		response.ServerError(c, "文件保存失败")
		return
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	if _, err := io.Copy(tempFile, file); err != nil {
		response.ServerError(c, "文件保存失败")
		return
	}

	displayName := c.PostForm("display_name")
	if displayName == "" {
		displayName = strings.TrimSuffix(header.Filename, ext)
	}

	repo, err := h.repoService.CreateFromZip(userID, tempFile.Name(), displayName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidZip):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "导入成功", repo)
}

// CreateFromGit 从 Git 地址导入仓库
// POST /api/v1/repositories/git
func (h *RepoHandler) CreateFromGit(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateRepoFromGitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	repo, err := h.repoService.CreateFromGit(c.Request.Context(), userID, req.RepoURL, req.DisplayName)
	if err != nil {
		var ce *service.CloneError
		if errors.As(err, &ce) {
			response.ParamError(c, ce.UserMessage)
			return
		}
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "导入成功", repo)
}

// List 获取仓库列表
// GET /api/v1/repositories
func (h *RepoHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	repos, err := h.repoService.List(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, repos)
}

// Get 获取仓库详情
// GET /api/v1/repositories/:id
func (h *RepoHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	repoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的仓库ID")
		return
	}

	repo, err := h.repoService.Get(userID, repoID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRepoNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrRepoPermission):
			response.PermissionError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, repo)
}

// Delete 删除仓库（?soft=true 为软删除）
// DELETE /api/v1/repositories/:id
func (h *RepoHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	repoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的仓库ID")
		return
	}

	var req dto.DeleteRepoRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.repoService.Delete(c.Request.Context(), userID, repoID, req.Soft); err != nil {
		switch {
		case errors.Is(err, service.ErrRepoPermission):
			response.PermissionError(c, err.Error())
		case errors.Is(err, service.ErrRepoHasRunning):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}
