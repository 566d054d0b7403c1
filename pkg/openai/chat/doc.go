// Package chat 实现对话补全端点（/chat/completions）
//
// 包含同步与流式两种调用方式，核心是流式响应的增量合并引擎：
// 将 SSE 分片序列折叠为与非流式响应同构的完整对象。
//
// # 同步调用
//
//	svc := chat.NewService(transport)
//	completion, err := svc.Create(ctx, chat.NewParams("gpt-4o",
//	    chat.User("你好"),
//	))
//	fmt.Println(completion.FirstContent())
//
// # 流式调用
//
//	stream, err := svc.CreateStream(ctx, params)
//	if err != nil {
//	    return err
//	}
//	completion, itemErrs, err := stream.Collect()
//
// 或逐分片消费（[CompletionStream.Recv]），或回调驱动
// （[CompletionStream.Each]）。
//
// # 增量合并
//
// [MergeChoice] 是显式命名的纯合并函数：(已累积状态, 新增量) →
// 新状态。合并规则：
//   - content/reasoning/refusal 按到达顺序逐字节拼接
//   - role 与 finish_reason 首个非空值生效
//   - 工具调用按 ToolCallDelta.Index 对齐，id/name 首值生效，
//     arguments 跨分片拼接还原完整 JSON 字符串
//   - 多候选（n > 1）按 choice index 完全独立合并
//
// [Accumulator] 维护一次流式调用的全部候选状态，
// [Accumulator.Completion] 输出最终对象。
//
// # 错误分级
//
// 流中单条载荷损坏产生 openai.ConvertError，可跳过继续；
// 流级失败（截断、连接中断）产生 openai.StreamError，终止迭代。
// 工具调用参数在流中途是合法的不完整 JSON，引擎只拼接不解析，
// 完整性由调用方在流结束后检验。
package chat
