// Package inspectflow 提供交互式调试客户端的公开 API。
// 应用层通过 api 包引用，勿直接使用 internal。
//
// 示例：
//
//	import inspectflow "github.com/Pentahill/inspectflow/api"
//
//	cfg, err := inspectflow.LoadConfig()
//	if err != nil {
//	    return err
//	}
//	source, err := inspectflow.NewStdio()
//	if err != nil {
//	    return err
//	}
//	client := inspectflow.NewClient(&inspectflow.ClientOptional{
//	    Config: &cfg,
//	    Source: source,
//	})
//	err = client.Run(ctx)
package inspectflow
