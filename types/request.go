package types

import (
	"strings"
)

// Channel 表示会话发生的渠道。
type Channel string

const (
	ChannelLinkedIn Channel = "linkedin"
	ChannelEmail    Channel = "email"
)

// ParseChannel 解析渠道字符串（忽略大小写与首尾空白）。
func ParseChannel(s string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelLinkedIn:
		return ChannelLinkedIn, true
	case ChannelEmail:
		return ChannelEmail, true
	}
	return "", false
}

// StepName 标识工作流中的一个步骤。
type StepName string

const (
	StepProfileEnrichment StepName = "profile_enrichment"
	StepThreadAnalysis    StepName = "thread_analysis"
	StepReplyGeneration   StepName = "reply_generation"
)

// StepFlags 选择本次调用启用哪些步骤。
type StepFlags struct {
	ProfileEnrichment bool `json:"profile_enrichment"`
	ThreadAnalysis    bool `json:"thread_analysis"`
	ReplyGeneration   bool `json:"reply_generation"`
}

// Enabled 返回启用步骤的有序列表（顺序固定，便于生成稳定指纹）。
func (f StepFlags) Enabled() []StepName {
	steps := make([]StepName, 0, 3)
	if f.ProfileEnrichment {
		steps = append(steps, StepProfileEnrichment)
	}
	if f.ThreadAnalysis {
		steps = append(steps, StepThreadAnalysis)
	}
	if f.ReplyGeneration {
		steps = append(steps, StepReplyGeneration)
	}
	return steps
}

// None reports whether no step is enabled.
func (f StepFlags) None() bool {
	return !f.ProfileEnrichment && !f.ThreadAnalysis && !f.ReplyGeneration
}

// Request 描述一次回复工作流调用。在 API 边界创建，之后不再修改。
//
// AdditionalContext 是易变的自由文本，不参与指纹计算，
// 因此仅上下文不同的近似请求会折叠到同一个缓存键。
type Request struct {
	ConversationThread string    `json:"conversation_thread"`
	Channel            Channel   `json:"channel"`
	ProspectProfileURL string    `json:"prospect_profile_url,omitempty"`
	CompanyURL         string    `json:"company_url,omitempty"`
	AdditionalContext  string    `json:"additional_context,omitempty"`
	Steps              StepFlags `json:"steps"`
}

// Validate 校验请求的必要字段。
func (r *Request) Validate() error {
	if r == nil {
		return NewInvalidRequestError("request is nil")
	}
	if strings.TrimSpace(r.ConversationThread) == "" {
		return NewInvalidRequestError("conversation_thread is required")
	}
	if _, ok := ParseChannel(string(r.Channel)); !ok {
		return NewInvalidRequestError("channel must be one of: linkedin, email")
	}
	if r.Steps.None() {
		return NewInvalidRequestError("at least one step must be enabled")
	}
	return nil
}

// Text 返回参与语义嵌入的文本内容。
func (r *Request) Text() string {
	var b strings.Builder
	b.WriteString(r.ConversationThread)
	if r.ProspectProfileURL != "" {
		b.WriteString("\n")
		b.WriteString(r.ProspectProfileURL)
	}
	if r.CompanyURL != "" {
		b.WriteString("\n")
		b.WriteString(r.CompanyURL)
	}
	return b.String()
}
