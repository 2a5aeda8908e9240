package types

import (
	"time"
)

// StepStatus 表示单个步骤的终态。
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepTimedOut  StepStatus = "timed_out"
)

// OverallStatus 表示一次工作流执行的整体状态。
type OverallStatus string

const (
	// StatusCompleted 所有启用步骤全部成功。
	StatusCompleted OverallStatus = "completed"
	// StatusPartial 必需步骤成功，但部分可选步骤失败或超时。
	StatusPartial OverallStatus = "partial"
	// StatusFailed 任一必需步骤失败。
	StatusFailed OverallStatus = "failed"
)

// StepResult 记录一个步骤的执行结果。由执行器创建，产生后不再修改。
// 失败以数据形式表示而非异常，聚合器据此决定整体状态。
type StepResult struct {
	StepName StepName      `json:"step_name"`
	Status   StepStatus    `json:"status"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the step completed successfully.
func (s *StepResult) OK() bool {
	return s != nil && s.Status == StepCompleted
}

// Result 是一次请求所有步骤结果的合并视图。
// 写入缓存与执行历史后不再修改。
type Result struct {
	Fingerprint string                   `json:"fingerprint"`
	Status      OverallStatus            `json:"status"`
	Steps       map[StepName]*StepResult `json:"steps"`
	StartedAt   time.Time                `json:"started_at"`
	Duration    time.Duration            `json:"duration"`
}

// Step returns the result for the named step, if present.
func (r *Result) Step(name StepName) (*StepResult, bool) {
	if r == nil || r.Steps == nil {
		return nil, false
	}
	s, ok := r.Steps[name]
	return s, ok
}

// Failed reports whether a required step failed.
func (r *Result) Failed() bool {
	return r != nil && r.Status == StatusFailed
}

// MergeStatus 根据各步骤结果计算整体状态。
// required 指明哪些步骤为必需步骤。
func MergeStatus(steps map[StepName]*StepResult, required map[StepName]bool) OverallStatus {
	optionalFailed := false
	for name, sr := range steps {
		if sr.OK() {
			continue
		}
		if required[name] {
			return StatusFailed
		}
		optionalFailed = true
	}
	if optionalFailed {
		return StatusPartial
	}
	return StatusCompleted
}
