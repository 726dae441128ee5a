package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/repoanalyzer/internal/api/middleware"
	"github.com/qs3c/repoanalyzer/internal/model/dto"
	"github.com/qs3c/repoanalyzer/internal/orcherr"
	"github.com/qs3c/repoanalyzer/internal/pkg/response"
	"github.com/qs3c/repoanalyzer/internal/service"
)

type TaskHandler struct {
	taskService *service.TaskService
}

func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// Create 创建分析任务
// POST /api/v1/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.taskService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRepoNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrRepoPermission):
			response.PermissionError(c, err.Error())
		case errors.Is(err, service.ErrRepoDeleted):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "任务已创建", resp)
}

// Get 获取任务详情（含派生进度）
// GET /api/v1/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	detail, err := h.taskService.GetDetail(userID, taskID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrTaskPermission):
			response.PermissionError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, detail)
}

// Update 更新任务（受控字段）
// PUT /api/v1/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.taskService.Update(userID, taskID, &req); err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrTaskPermission):
			response.PermissionError(c, err.Error())
		default:
			if oe, ok := orcherr.As(err); ok && oe.Kind == orcherr.KindConflict {
				response.ParamError(c, oe.Message)
				return
			}
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "更新成功", nil)
}

// Cancel 取消任务
// POST /api/v1/tasks/:id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	if err := h.taskService.Cancel(c.Request.Context(), userID, taskID); err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrTaskPermission):
			response.PermissionError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "任务已取消", nil)
}

// Queue 获取队列快照（?task_id= 可带上查询位置）
// GET /api/v1/tasks/queue
func (h *TaskHandler) Queue(c *gin.Context) {
	taskID, _ := strconv.ParseInt(c.Query("task_id"), 10, 64)

	snap, err := h.taskService.QueueSnapshot(taskID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, snap)
}
