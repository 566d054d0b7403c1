// Package mock 提供进程内的 API mock 服务器
//
// 本包基于 httptest 实现全部端点的模拟，用于测试和开发场景，
// 无需真实的 API 即可验证业务逻辑与流式消费端。
//
// # 概述
//
// [Server] 是核心类型，提供可预测的响应行为：
//
//   - 覆盖对话补全、文本补全、模型、向量化全部端点
//   - 流式响应的分片粒度、行结束符、keep-alive 注释可配置
//   - 可注入截断流、非法载荷、限流与瞬态错误
//   - 记录所有请求详情，便于测试验证
//
// # 快速开始
//
//	srv := mock.NewServer()
//	defer srv.Close()
//
//	c, _ := client.New(openai.Config{
//	    APIKey:  "test-key",
//	    BaseURL: srv.URL(),
//	})
//	completion, err := c.Chat().Create(ctx, params)
//
// # 场景配置
//
// 通过 YAML 配置响应场景，按请求头 X-Mock-Scenario 指定或按
// 用户消息子串匹配：
//
//	cfg := &mock.Config{
//	    Scenarios: []mock.Scenario{
//	        {
//	            Name:     "tiny",
//	            Response: "Hello",
//	            Stream:   mock.StreamSpec{ChunkSize: 1},
//	        },
//	        {
//	            Name:  "flaky",
//	            Error: &mock.ErrorSpec{Status: 500, Times: 2},
//	        },
//	    },
//	}
//	srv := mock.NewServer(mock.WithConfig(cfg))
//
// 内嵌的示例配置见 [LoadExampleConfig]。
//
// # 异常注入
//
// StreamSpec 控制流式下发的形态，用于演练消费端的容错路径：
//
//	Stream: mock.StreamSpec{
//	    DropDone:    true, // 不发送 [DONE]，模拟截断
//	    MalformedAt: 2,    // 第 2 条载荷替换为非法 JSON
//	}
package mock
