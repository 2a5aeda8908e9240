package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/replyflow/llm"
	"github.com/BaSui01/replyflow/types"
)

// StepInput 是步骤的只读输入。Upstream 携带已结算的上游步骤输出，
// 下游步骤需容忍其中的缺项。
type StepInput struct {
	Request  *types.Request
	Upstream map[types.StepName]string
}

// Step 是工作流中的一个可执行单元。
type Step interface {
	// Name 返回步骤名。
	Name() types.StepName

	// Required 指示该步骤失败是否导致整体失败。
	Required() bool

	// Run 执行步骤并返回文本输出。失败通过 error 表达，由执行器转换为数据。
	Run(ctx context.Context, input *StepInput) (string, error)
}

// promptFunc 根据输入渲染步骤提示词。
type promptFunc func(input *StepInput) string

// LLMStep 渲染提示词并调用补全提供者的通用步骤实现。
type LLMStep struct {
	name     types.StepName
	required bool
	provider llm.Provider
	render   promptFunc
}

// NewLLMStep 创建一个 LLM 步骤。
func NewLLMStep(name types.StepName, required bool, provider llm.Provider, render promptFunc) *LLMStep {
	return &LLMStep{
		name:     name,
		required: required,
		provider: provider,
		render:   render,
	}
}

// Name 实现 Step.Name。
func (s *LLMStep) Name() types.StepName { return s.name }

// Required 实现 Step.Required。
func (s *LLMStep) Required() bool { return s.required }

// Run 实现 Step.Run。
func (s *LLMStep) Run(ctx context.Context, input *StepInput) (string, error) {
	resp, err := s.provider.Complete(ctx, &llm.CompletionRequest{
		Prompt: s.render(input),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// NewProfileEnrichmentStep 创建档案补全步骤（可选步骤）。
func NewProfileEnrichmentStep(provider llm.Provider) *LLMStep {
	return NewLLMStep(types.StepProfileEnrichment, false, provider, func(input *StepInput) string {
		var b strings.Builder
		b.WriteString("Summarize what is publicly known about this prospect for an outreach reply.\n")
		if input.Request.ProspectProfileURL != "" {
			fmt.Fprintf(&b, "Prospect profile: %s\n", input.Request.ProspectProfileURL)
		}
		if input.Request.CompanyURL != "" {
			fmt.Fprintf(&b, "Company: %s\n", input.Request.CompanyURL)
		}
		fmt.Fprintf(&b, "Channel: %s\n", input.Request.Channel)
		return b.String()
	})
}

// NewThreadAnalysisStep 创建会话分析步骤（可选步骤）。
func NewThreadAnalysisStep(provider llm.Provider) *LLMStep {
	return NewLLMStep(types.StepThreadAnalysis, false, provider, func(input *StepInput) string {
		var b strings.Builder
		b.WriteString("Analyze the intent, tone and open questions in this conversation thread.\n\n")
		b.WriteString(input.Request.ConversationThread)
		return b.String()
	})
}

// NewReplyGenerationStep 创建回复生成步骤（必需步骤）。
// 提示词吸收已结算的上游输出，上游缺失时降级为仅凭会话原文生成。
func NewReplyGenerationStep(provider llm.Provider) *LLMStep {
	return NewLLMStep(types.StepReplyGeneration, true, provider, func(input *StepInput) string {
		var b strings.Builder
		fmt.Fprintf(&b, "Write a reply for this %s conversation.\n\n", input.Request.Channel)
		fmt.Fprintf(&b, "Conversation thread:\n%s\n", input.Request.ConversationThread)
		if profile, ok := input.Upstream[types.StepProfileEnrichment]; ok && profile != "" {
			fmt.Fprintf(&b, "\nProspect background:\n%s\n", profile)
		}
		if analysis, ok := input.Upstream[types.StepThreadAnalysis]; ok && analysis != "" {
			fmt.Fprintf(&b, "\nThread analysis:\n%s\n", analysis)
		}
		if input.Request.AdditionalContext != "" {
			fmt.Fprintf(&b, "\nAdditional instructions from the sender:\n%s\n", input.Request.AdditionalContext)
		}
		return b.String()
	})
}

// BuildSteps 根据请求的步骤开关构造步骤列表。
func BuildSteps(provider llm.Provider, flags types.StepFlags) []Step {
	steps := make([]Step, 0, 3)
	if flags.ProfileEnrichment {
		steps = append(steps, NewProfileEnrichmentStep(provider))
	}
	if flags.ThreadAnalysis {
		steps = append(steps, NewThreadAnalysisStep(provider))
	}
	if flags.ReplyGeneration {
		steps = append(steps, NewReplyGenerationStep(provider))
	}
	return steps
}
