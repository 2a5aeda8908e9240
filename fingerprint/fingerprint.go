// Package fingerprint 从请求的语义相关字段派生稳定的缓存键。
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/replyflow/types"
)

// payload 是参与指纹计算的字段集合。
// AdditionalContext 刻意排除：仅上下文不同的请求应折叠到同一个键。
type payload struct {
	Conversation string   `json:"conversation"`
	Channel      string   `json:"channel"`
	ProfileURL   string   `json:"profile_url,omitempty"`
	CompanyURL   string   `json:"company_url,omitempty"`
	Steps        []string `json:"steps"`
}

// Build 计算请求的指纹：对语义相关字段的规范化 JSON 做 SHA-256。
// 相同语义字段 ⇒ 相同指纹。指纹同时作为精确缓存键与 singleflight 协调键。
func Build(req *types.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	channel, _ := types.ParseChannel(string(req.Channel))

	steps := req.Steps.Enabled()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = string(s)
	}

	p := payload{
		Conversation: normalizeText(req.ConversationThread),
		Channel:      string(channel),
		ProfileURL:   NormalizeURL(req.ProspectProfileURL),
		CompanyURL:   NormalizeURL(req.CompanyURL),
		Steps:        names,
	}

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint payload: %w", err)
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// normalizeText 折叠空白，使排版差异不影响指纹。
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeURL 规范化 URL：去首尾空白、转小写、去尾部斜杠。
// https:// 前缀补全，使 "linkedin.com/in/jane" 与
// "https://LinkedIn.com/in/jane/" 折叠到同一个键。
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	if u == "" {
		return ""
	}
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimSuffix(u, "/")
	if u == "" {
		return ""
	}
	return "https://" + u
}
