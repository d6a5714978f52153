package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/metrics"
	"github.com/benvon/wte-api/internal/models"
	"go.uber.org/zap"
)

const recommendationPrompt = `你是一位专业的营养师和美食推荐专家。请根据用户的历史饮食数据，推荐一种健康的食物。

要求：
1. 分析用户已经吃过的食物，尽量推荐用户没吃过但可能感兴趣的健康食物
2. 考虑营养均衡，补充用户饮食中可能缺失的营养成分
3. 食物要具有健康价值，如富含维生素、纤维、优质蛋白质等
4. 输出格式必须严格按照以下JSON格式：
{
  "foodName": "食物名称",
  "reason": "推荐理由（20字以内，说明为什么健康和对人体的好处）"
}

注意：
- 只输出一个JSON对象，不要有其他内容
- 推荐理由要简洁明了，重点突出健康价值
- 食物名称要具体，如"蒸蛋羹"而不是"蛋类"`

const (
	// FallbackFoodName is recommended when the reply names no food
	FallbackFoodName = "健康蔬菜"
	// FallbackReason accompanies a recommendation parsed from free text
	FallbackReason = "营养均衡，有益健康"
)

var (
	recommendationObject = regexp.MustCompile(`(?is)\{[^{}]*"foodName"[^{}]*"reason"[^{}]*\}`)
	fencedObject         = regexp.MustCompile("(?is)```json\\s*(\\{[^}]*\\})\\s*```")
	anyObject            = regexp.MustCompile(`\{[^{}]*\}`)
)

// Recommendation is a single suggested food
type Recommendation struct {
	FoodName string `json:"foodName"`
	Reason   string `json:"reason"`
}

// Recommender suggests a healthy food the user has not been eating
type Recommender struct {
	provider Provider
	logger   *zap.Logger
}

// NewRecommender creates a recommender
func NewRecommender(provider Provider, logger *zap.Logger) *Recommender {
	return &Recommender{provider: provider, logger: logger}
}

// Recommend asks the model for one food based on the JSON meal history
func (r *Recommender) Recommend(ctx context.Context, history string, profile *models.HealthProfile) (*Recommendation, error) {
	if r.provider == nil {
		return nil, ErrNotConfigured
	}

	reply, err := r.provider.Complete(ctx, []Message{
		SystemMessage(recommendationPrompt),
		UserMessage("用户历史饮食数据：" + history + profileSuffix(profile)),
	})
	metrics.RecordLLM("recommendation", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get food recommendation: %w", err)
	}

	if rec, ok := parseRecommendation(reply); ok {
		return rec, nil
	}

	r.logger.Warn("recommendation_not_json",
		zap.String("reply", logger.SanitizeString(reply, previewLength)),
	)
	return fallbackRecommendation(reply), nil
}

func parseRecommendation(reply string) (*Recommendation, bool) {
	var rec Recommendation
	if err := json.Unmarshal([]byte(extractJSON(reply)), &rec); err != nil {
		return nil, false
	}
	rec.FoodName = strings.TrimSpace(rec.FoodName)
	rec.Reason = strings.TrimSpace(rec.Reason)
	if rec.FoodName == "" {
		return nil, false
	}
	return &rec, true
}

// extractJSON finds the recommendation object in a reply that may carry prose or code fences
func extractJSON(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed
	}
	if m := recommendationObject.FindString(reply); m != "" {
		return m
	}
	if m := fencedObject.FindStringSubmatch(reply); m != nil {
		return m[1]
	}
	if m := anyObject.FindString(reply); m != "" {
		return m
	}
	return trimmed
}

// fallbackRecommendation takes the food from the first line mentioning a food or recommendation
func fallbackRecommendation(reply string) *Recommendation {
	rec := &Recommendation{FoodName: FallbackFoodName, Reason: FallbackReason}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "食物") && !strings.Contains(line, "推荐") {
			continue
		}
		parts := strings.FieldsFunc(line, func(r rune) bool {
			return r == '：' || r == ':' || r == ' '
		})
		if len(parts) > 1 {
			rec.FoodName = strings.TrimSpace(parts[1])
			break
		}
	}
	return rec
}
