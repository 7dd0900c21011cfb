package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"neighborly/internal/pkg/httpclient"
)

// ChannelHTTPAdapter 实现了 port.ChannelProvisioner 接口，调用会话频道服务。
type ChannelHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

// NewChannelHTTPAdapter 创建一个新的频道服务适配器。
func NewChannelHTTPAdapter(client *httpclient.Client, baseURL string) *ChannelHTTPAdapter {
	return &ChannelHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type openChannelRequest struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

type openChannelResponse struct {
	ChannelID string `json:"channelId"`
}

// Open 为撮合双方打开一个会话频道。
func (a *ChannelHTTPAdapter) Open(ctx context.Context, matchID, participantA, participantB string) (string, error) {
	var resp openChannelResponse
	req := openChannelRequest{MatchID: matchID, Participants: []string{participantA, participantB}}
	if err := a.client.PostJSON(ctx, a.baseURL+"/channels", req, &resp); err != nil {
		return "", errors.Wrapf(err, "open channel for match %s", matchID)
	}
	if resp.ChannelID == "" {
		return "", fmt.Errorf("channel service returned empty id for match %s", matchID)
	}
	return resp.ChannelID, nil
}

// Close 关闭会话频道，频道已不存在时视为成功。
func (a *ChannelHTTPAdapter) Close(ctx context.Context, channelID string) error {
	endpoint := fmt.Sprintf("%s/channels/%s/close", a.baseURL, url.PathEscape(channelID))
	err := a.client.PostJSON(ctx, endpoint, struct{}{}, nil)
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
		return nil
	}
	return errors.Wrapf(err, "close channel %s", channelID)
}
