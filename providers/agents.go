package providers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/types"
	"github.com/BaSui01/canvasflow/workflow"
)

// LocalAgentProvider 本地智能体提供者：无需外部 LLM 的确定性实现
// LocalAgentProvider implements workflow.AgentProvider with deterministic
// summaries. It exists so the engine runs end-to-end out of the box; wire a
// real reasoning backend behind the same interface for production.
type LocalAgentProvider struct {
	logger *zap.Logger
}

// NewLocalAgentProvider creates the local provider.
func NewLocalAgentProvider(logger *zap.Logger) *LocalAgentProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalAgentProvider{
		logger: logger.With(zap.String("component", "local_agent_provider")),
	}
}

// Invoke runs a single agent against a task and returns a deterministic
// completion summary.
func (p *LocalAgentProvider) Invoke(ctx context.Context, spec workflow.AgentSpec, task string) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if task == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "agent invocation needs a task description")
	}

	p.logger.Debug("执行智能体任务 | executing agent task",
		zap.String("role", spec.Role),
		zap.String("task", task))

	return map[string]any{
		"role":   spec.Role,
		"task":   task,
		"output": fmt.Sprintf("[%s] completed: %s", spec.Role, task),
	}, nil
}

// InvokeCrew processes the task list sequentially, each task handled by its
// assigned agent. A task whose agent index is out of range fails that task
// but not the crew; the last successful output becomes the crew output.
func (p *LocalAgentProvider) InvokeCrew(ctx context.Context, agents []workflow.AgentSpec, tasks []workflow.CrewTask) (*workflow.CrewResult, error) {
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "crew needs at least one agent")
	}

	started := time.Now()
	result := &workflow.CrewResult{
		TaskResults: make(map[string]*workflow.TaskResult, len(tasks)),
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		taskStarted := time.Now()
		taskResult := &workflow.TaskResult{TaskID: task.ID}

		if task.AgentIndex < 0 || task.AgentIndex >= len(agents) {
			taskResult.Error = fmt.Sprintf("task %s references unknown agent index %d", task.ID, task.AgentIndex)
		} else {
			output, err := p.Invoke(ctx, agents[task.AgentIndex], task.Description)
			if err != nil {
				taskResult.Error = err.Error()
			} else {
				taskResult.Output = output
				result.Output = output
			}
		}

		taskResult.DurationMs = time.Since(taskStarted).Milliseconds()
		result.TaskResults[task.ID] = taskResult
	}

	result.Duration = time.Since(started)
	p.logger.Info("团队执行完成 | crew execution finished",
		zap.Int("agents", len(agents)),
		zap.Int("tasks", len(tasks)),
		zap.Duration("duration", result.Duration))
	return result, nil
}
