package port

import "context"

// ChannelProvisioner 是会话频道服务的出站端口。
// 撮合建立时打开频道，撮合结束时关闭。
type ChannelProvisioner interface {
	Open(ctx context.Context, matchID, participantA, participantB string) (channelID string, err error)
	Close(ctx context.Context, channelID string) error
}
