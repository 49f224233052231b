package notify

import "context"

// Notifier 定义确认码投递接口。
type Notifier interface {
	// SendConfirmationCode 把确认码发给收件人。
	//
	// 投递失败必须返回错误：注册流程以此决定是否向客户端报成功。
	SendConfirmationCode(ctx context.Context, toEmail string, code string) error
}
