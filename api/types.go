package api

import (
	"time"

	"github.com/BaSui01/canvasflow/workflow"
)

// =============================================================================
// 工作流执行类型
// =============================================================================

// ExecuteWorkflowRequest 代表工作流执行请求。
// @Description 工作流执行请求结构
type ExecuteWorkflowRequest struct {
	// 画布 ID
	CanvasID string `json:"canvas_id" example:"canvas-1" binding:"required"`
	// 项目 ID（多项目隔离）
	ProjectID string `json:"project_id,omitempty" example:"project-1"`
	// 外部工作流标识（回显到结果）
	WorkflowID string `json:"workflow_id,omitempty" example:"wf-42"`
	// 运行输入数据
	InputData map[string]any `json:"input_data,omitempty"`
}

// ExecuteWorkflowResponse 表示工作流执行的同步结果。
// @Description 工作流执行响应结构
type ExecuteWorkflowResponse struct {
	// 外部工作流标识
	WorkflowID string `json:"workflow_id,omitempty" example:"wf-42"`
	// 本次运行 ID
	RunID string `json:"run_id" example:"b6c1..."`
	// 终态: completed, failed, cancelled
	Status workflow.RunStatus `json:"status" example:"completed"`
	// 执行策略: sequential, branching, multi_agent
	Strategy workflow.Strategy `json:"strategy" example:"sequential"`
	// 运行输出
	Result any `json:"result,omitempty"`
	// 运行级错误消息（failed 时）
	Error string `json:"error,omitempty"`
	// 执行耗时（秒）
	ExecutionTime float64 `json:"execution_time" example:"1.42"`
}

// RunSnapshot 表示一次运行的完整快照。
// @Description 运行快照结构
type RunSnapshot struct {
	ID            string               `json:"id"`
	ProjectID     string               `json:"project_id,omitempty"`
	CanvasID      string               `json:"canvas_id"`
	WorkflowID    string               `json:"workflow_id,omitempty"`
	Status        workflow.RunStatus   `json:"status"`
	Strategy      workflow.Strategy    `json:"strategy,omitempty"`
	Input         map[string]any       `json:"input,omitempty"`
	Output        any                  `json:"output,omitempty"`
	Trace         []workflow.TraceEntry `json:"trace,omitempty"`
	ErrorMessage  string               `json:"error_message,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	ExecutionTime float64              `json:"execution_time,omitempty"`
}

// SnapshotFromRun 将引擎内部的 Run 转换为 API 快照
func SnapshotFromRun(run *workflow.Run) *RunSnapshot {
	return &RunSnapshot{
		ID:            run.ID,
		ProjectID:     run.ProjectID,
		CanvasID:      run.CanvasID,
		WorkflowID:    run.WorkflowID,
		Status:        run.Status,
		Strategy:      run.Strategy,
		Input:         run.Input,
		Output:        run.Output,
		Trace:         run.Trace,
		ErrorMessage:  run.ErrorMessage,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		ExecutionTime: run.ExecutionTime,
	}
}

// ListRunsResponse 表示运行列表响应。
// @Description 运行列表响应结构
type ListRunsResponse struct {
	Runs  []*RunSnapshot `json:"runs"`
	Count int            `json:"count"`
}

// =============================================================================
// 画布管理类型
// =============================================================================

// SaveCanvasRequest 代表画布保存请求。
// @Description 画布保存请求结构
type SaveCanvasRequest struct {
	// 画布 ID（为空则生成）
	CanvasID string `json:"canvas_id,omitempty" example:"canvas-1"`
	// 项目 ID
	ProjectID string `json:"project_id,omitempty" example:"project-1"`
	// 画布文档
	Canvas *workflow.Canvas `json:"canvas" binding:"required"`
}

// SaveCanvasResponse 表示画布保存响应。
// @Description 画布保存响应结构
type SaveCanvasResponse struct {
	CanvasID string `json:"canvas_id"`
}

// CancelRunResponse 表示取消请求的结果。
// @Description 取消运行响应结构
type CancelRunResponse struct {
	RunID  string             `json:"run_id"`
	Status workflow.RunStatus `json:"status"`
}
