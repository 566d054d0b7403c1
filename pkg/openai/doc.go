// Package openai 提供 OpenAI 兼容 API 的客户端基础类型
//
// 本包定义了与 OpenAI 格式服务交互所需的共享类型，包括：
//   - [Config]: 客户端配置（密钥、地址、超时、重试）
//   - [Usage]: Token 用量统计
//   - [FinishReason]: 完成原因枚举
//   - 错误类型体系：支持 errors.Is/As 匹配
//
// 完整使用示例请参考 client 子包的 example_test.go。
//
// # 核心类型
//
// [Config] 描述一个客户端实例的全部配置，零值字段在创建客户端时
// 填充默认值。[ConfigFromEnv] 从环境变量读取密钥和地址。
//
// [Usage] 表示一次请求的 token 消耗，包含推理 token 等细分统计。
//
// # 错误体系
//
// 所有错误实现统一的 [BaseError] 结构，按层次分为：
//   - [ConfigError]: 配置错误（密钥缺失、地址非法）
//   - [RequestError]: 请求构建错误（序列化失败等）
//   - [HTTPError]: 传输层错误（连接、超时）
//   - [APIError]: API 业务错误（非 2xx 响应）
//   - [ResponseError]: 响应解析错误
//   - [StreamError]: 流式传输错误（截断、中断）
//   - [ConvertError]: 单条流式载荷解码错误（可恢复）
//
// 使用 IsXxxError 系列函数匹配错误类型，[IsRetryableError] 判断
// 是否值得重试。
//
// # 环境变量
//
// 本包支持从环境变量读取配置：
//   - OPENAI_API_KEY: API 密钥
//   - OPENAI_BASE_URL: 服务地址（默认 https://api.openai.com/v1）
//
// # 子包组织
//
// 具体端点实现位于子包：
//   - [pkg/openai/client]: 客户端入口（聚合各端点）
//   - [pkg/openai/chat]: Chat Completions（含流式增量合并）
//   - [pkg/openai/completions]: 传统 Completions
//   - [pkg/openai/embeddings]: 向量嵌入
//   - [pkg/openai/models]: 模型查询
//   - [pkg/openai/core]: HTTP 传输与 SSE 解码
//   - [pkg/openai/metrics]: Prometheus 指标
//   - [pkg/openai/mock]: 场景化 Mock 服务器（用于测试）
//
// # 包文件组织
//
//   - types.go: Usage、FinishReason、指针辅助函数
//   - config.go: Config、默认值、环境变量加载
//   - errors.go: 错误类型体系
package openai
