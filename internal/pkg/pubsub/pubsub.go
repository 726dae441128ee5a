package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelTaskProgress = "task_progress"
)

// ProgressMessage 任务进度消息
type ProgressMessage struct {
	Type        string  `json:"type"`
	TaskID      int64   `json:"task_id"`
	Status      string  `json:"status"`
	Step        string  `json:"step"`
	Percent     float64 `json:"percent"`
	CurrentFile string  `json:"current_file,omitempty"`
	Message     string  `json:"message,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// 流水线阶段常量（与 progress 包的 Step 对应）
const (
	StepQueued   = "queued"
	StepScan     = "scan"
	StepIndex    = "index"
	StepAnalyze  = "analyze"
	StepDocument = "document"
)

// 阶段对应的消息
var StepMessages = map[string]string{
	StepQueued:   "排队等待中",
	StepScan:     "正在扫描仓库文件",
	StepIndex:    "正在构建向量索引",
	StepAnalyze:  "正在进行 AI 分析",
	StepDocument: "正在生成文档",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Type = "task_progress"

	if msg.Message == "" && msg.Step != "" {
		if message, ok := StepMessages[msg.Step]; ok {
			msg.Message = message
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelTaskProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelTaskProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}
