package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/api"
	"github.com/BaSui01/canvasflow/store"
	"github.com/BaSui01/canvasflow/types"
	"github.com/BaSui01/canvasflow/workflow"
)

// =============================================================================
// 🎯 工作流 Handler
// =============================================================================

// WorkflowHandler 工作流执行与运行管理处理器
type WorkflowHandler struct {
	coordinator *workflow.Coordinator
	canvases    store.CanvasStore
	logger      *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(coordinator *workflow.Coordinator, canvases store.CanvasStore, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		coordinator: coordinator,
		canvases:    canvases,
		logger:      logger.With(zap.String("component", "workflow_handler")),
	}
}

// RegisterRoutes 注册所有工作流路由
func (h *WorkflowHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/workflows/execute", h.HandleExecute)
	mux.HandleFunc("POST /api/v1/workflows/runs/{id}/cancel", h.HandleCancel)
	mux.HandleFunc("GET /api/v1/workflows/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/v1/workflows/runs", h.HandleListRuns)
	mux.HandleFunc("POST /api/v1/canvases", h.HandleSaveCanvas)
	mux.HandleFunc("GET /api/v1/canvases/{id}", h.HandleGetCanvas)
}

// HandleExecute 处理工作流执行请求
// @Summary 执行工作流
// @Description 编译画布并同步执行，返回运行终态。运行级失败（failed 状态）
// @Description 不算请求错误，仍返回 200。
// @Tags 工作流
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=api.ExecuteWorkflowResponse}
// @Failure 400 {object} Response "请求无效或画布不合法"
// @Router /api/v1/workflows/execute [post]
func (h *WorkflowHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req api.ExecuteWorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.CanvasID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "canvas_id is required", h.logger)
		return
	}

	result, err := h.coordinator.ExecuteWorkflow(r.Context(), workflow.ExecuteRequest{
		ProjectID:  req.ProjectID,
		CanvasID:   req.CanvasID,
		WorkflowID: req.WorkflowID,
		Input:      req.InputData,
	})
	if err != nil {
		// 只有编译失败、找不到画布等前置错误会走到这里；
		// 节点失败已折叠进 result.Status
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, &api.ExecuteWorkflowResponse{
		WorkflowID:    result.WorkflowID,
		RunID:         result.RunID,
		Status:        result.Status,
		Strategy:      result.Strategy,
		Result:        result.Result,
		Error:         result.Error,
		ExecutionTime: result.ExecutionTime,
	})
}

// HandleCancel 处理运行取消请求
// @Summary 取消运行
// @Description 取消一个进行中的运行；已终止的运行返回 409。
// @Tags 工作流
// @Produce json
// @Success 200 {object} Response{data=api.CancelRunResponse}
// @Failure 404 {object} Response "运行不存在"
// @Failure 409 {object} Response "运行已终止"
// @Router /api/v1/workflows/runs/{id}/cancel [post]
func (h *WorkflowHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run id is required", h.logger)
		return
	}

	if err := h.coordinator.CancelWorkflow(r.Context(), runID); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, &api.CancelRunResponse{
		RunID:  runID,
		Status: workflow.StatusCancelled,
	})
}

// HandleGetRun 处理运行查询请求
// @Summary 查询运行
// @Tags 工作流
// @Produce json
// @Success 200 {object} Response{data=api.RunSnapshot}
// @Failure 404 {object} Response "运行不存在"
// @Router /api/v1/workflows/runs/{id} [get]
func (h *WorkflowHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	run, err := h.coordinator.GetRun(r.Context(), runID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.SnapshotFromRun(run))
}

// HandleListRuns 处理运行列表请求
// @Summary 列出运行
// @Description 按过滤条件列出运行，新的在前。
// @Tags 工作流
// @Produce json
// @Param canvas_id query string false "画布 ID"
// @Param project_id query string false "项目 ID"
// @Param status query string false "逗号分隔的状态过滤"
// @Param limit query int false "返回条数上限"
// @Param offset query int false "跳过条数"
// @Success 200 {object} Response{data=api.ListRunsResponse}
// @Router /api/v1/workflows/runs [get]
func (h *WorkflowHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := runFilterFromQuery(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	runs, err := h.coordinator.ListRuns(r.Context(), filter)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	snapshots := make([]*api.RunSnapshot, 0, len(runs))
	for _, run := range runs {
		snapshots = append(snapshots, api.SnapshotFromRun(run))
	}
	WriteSuccess(w, &api.ListRunsResponse{Runs: snapshots, Count: len(snapshots)})
}

// runFilterFromQuery 从查询参数构造运行过滤器
func runFilterFromQuery(r *http.Request) (workflow.RunFilter, error) {
	q := r.URL.Query()
	filter := workflow.RunFilter{
		ProjectID: q.Get("project_id"),
		CanvasID:  q.Get("canvas_id"),
	}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Status = append(filter.Status, workflow.RunStatus(strings.TrimSpace(s)))
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, types.NewError(types.ErrInvalidRequest, "invalid limit parameter")
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, types.NewError(types.ErrInvalidRequest, "invalid offset parameter")
		}
		filter.Offset = offset
	}
	return filter, nil
}

// =============================================================================
// 🖼️ 画布管理
// =============================================================================

// HandleSaveCanvas 处理画布保存请求
// @Summary 保存画布
// @Description 新建或覆盖画布文档。保存不校验图结构，不合法的画布
// @Description 在执行时报 MALFORMED_GRAPH。
// @Tags 画布
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=api.SaveCanvasResponse}
// @Router /api/v1/canvases [post]
func (h *WorkflowHandler) HandleSaveCanvas(w http.ResponseWriter, r *http.Request) {
	var req api.SaveCanvasRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Canvas == nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "canvas is required", h.logger)
		return
	}

	canvasID, err := h.canvases.Save(r.Context(), req.CanvasID, req.ProjectID, req.Canvas)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("画布已保存 | canvas saved", zap.String("canvas_id", canvasID))
	WriteSuccess(w, &api.SaveCanvasResponse{CanvasID: canvasID})
}

// HandleGetCanvas 处理画布查询请求
// @Summary 查询画布
// @Tags 画布
// @Produce json
// @Success 200 {object} Response{data=workflow.Canvas}
// @Failure 404 {object} Response "画布不存在"
// @Router /api/v1/canvases/{id} [get]
func (h *WorkflowHandler) HandleGetCanvas(w http.ResponseWriter, r *http.Request) {
	canvasID := r.PathValue("id")

	canvas, err := h.canvases.GetCanvas(r.Context(), canvasID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, canvas)
}
