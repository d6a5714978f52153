package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/wte-api/internal/metrics"
	"github.com/benvon/wte-api/internal/models"
	"go.uber.org/zap"
)

const mealTimePrompt = `你是一位专业的营养师，擅长分析和建议饮食计划。请根据以下数据，分析每餐的时间和类型，并给出合理的饮食建议。
数据格式为JSON，包含每餐的类型、日期和时间。请注意，你只需要分析以下内容：
分析每餐的时间间隔，判断是否合理，并给出用餐时间的调整建议。(**间隔一小时之内的认为是同一餐，不需要对一小时之内的多次进食做分析**)
你不需要给出分析的过程，只需要给出最终的建议，不要绘制表格，总字数控制在500字以内。开头为"根据历史用餐数据，以下是我的建议："，输出完列举的建议后停止输出。`

const dietHealthPrompt = `你是一位专业的营养师，擅长分析用户的饮食健康状况。请根据以下详细的饮食数据，分析用户的营养摄入情况并给出健康建议。
数据格式为JSON，包含每餐的类型、日期、时间、具体食物名称和食物标签。请分析以下方面：
1. 营养均衡性分析（蛋白质、碳水化合物、维生素、纤维等）
2. 食物多样性评估
3. 不健康食物摄入情况
4. 针对性的饮食改善建议
请给出实用的建议，总字数控制在600字以内。开头为"根据您的详细饮食数据分析，以下是营养健康建议："，输出完建议后停止输出。`

// Advisor produces dietary advice from a user's meal history
type Advisor struct {
	provider Provider
	logger   *zap.Logger
}

// NewAdvisor creates an advisor. A nil provider makes every call return ErrNotConfigured.
func NewAdvisor(provider Provider, logger *zap.Logger) *Advisor {
	return &Advisor{provider: provider, logger: logger}
}

// AnalyzeMealTime returns advice on meal timing. history is the JSON meal history export.
func (a *Advisor) AnalyzeMealTime(ctx context.Context, history string, profile *models.HealthProfile) (string, error) {
	return a.complete(ctx, "meal_time", mealTimeMessages(history, profile))
}

// AnalyzeDietHealth returns advice on nutrition balance and food variety
func (a *Advisor) AnalyzeDietHealth(ctx context.Context, history string, profile *models.HealthProfile) (string, error) {
	return a.complete(ctx, "diet_health", dietHealthMessages(history, profile))
}

// StreamMealTime streams AnalyzeMealTime
func (a *Advisor) StreamMealTime(ctx context.Context, history string, profile *models.HealthProfile) (<-chan string, <-chan error) {
	return a.stream(ctx, "meal_time_stream", mealTimeMessages(history, profile))
}

// StreamDietHealth streams AnalyzeDietHealth
func (a *Advisor) StreamDietHealth(ctx context.Context, history string, profile *models.HealthProfile) (<-chan string, <-chan error) {
	return a.stream(ctx, "diet_health_stream", dietHealthMessages(history, profile))
}

func (a *Advisor) complete(ctx context.Context, operation string, messages []Message) (string, error) {
	if a.provider == nil {
		return "", ErrNotConfigured
	}

	reply, err := a.provider.Complete(ctx, messages)
	metrics.RecordLLM(operation, err)
	if err != nil {
		return "", fmt.Errorf("failed to get %s advice: %w", operation, err)
	}
	return strings.TrimSpace(reply), nil
}

func (a *Advisor) stream(ctx context.Context, operation string, messages []Message) (<-chan string, <-chan error) {
	if a.provider == nil {
		chunks := make(chan string)
		errs := make(chan error, 1)
		errs <- ErrNotConfigured
		close(chunks)
		close(errs)
		return chunks, errs
	}

	chunks, errs := a.provider.CompleteStream(ctx, messages)

	// Relay errors so the outcome is recorded once the stream ends
	out := make(chan error, 1)
	go func() {
		defer close(out)
		err := <-errs
		metrics.RecordLLM(operation, err)
		if err != nil {
			a.logger.Warn("advice_stream_failed", zap.String("operation", operation), zap.Error(err))
			out <- err
		}
	}()
	return chunks, out
}

func mealTimeMessages(history string, profile *models.HealthProfile) []Message {
	return []Message{
		SystemMessage(mealTimePrompt),
		UserMessage("请分析以下数据并提供饮食建议：" + history + profileSuffix(profile)),
	}
}

func dietHealthMessages(history string, profile *models.HealthProfile) []Message {
	return []Message{
		SystemMessage(dietHealthPrompt),
		UserMessage("请分析以下详细饮食数据并提供健康建议：" + history + profileSuffix(profile)),
	}
}

// profileSuffix describes the user's body data and goals, empty when nothing is known
func profileSuffix(profile *models.HealthProfile) string {
	if profile == nil {
		return ""
	}

	var parts []string
	if profile.Height != nil {
		parts = append(parts, fmt.Sprintf("身高%.0fcm", *profile.Height))
	}
	if profile.Weight != nil {
		parts = append(parts, fmt.Sprintf("体重%.1fkg", *profile.Weight))
	}
	if profile.HealthGoal != "" {
		parts = append(parts, "健康目标："+profile.HealthGoal)
	}
	if profile.Allergies != "" {
		parts = append(parts, "过敏："+profile.Allergies)
	}
	if len(parts) == 0 {
		return ""
	}
	return "\n用户信息：" + strings.Join(parts, "，")
}
