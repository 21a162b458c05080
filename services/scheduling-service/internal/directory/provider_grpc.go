//go:build protogen

package directory

import (
	"context"
	"time"

	"github.com/memberhub/memberhub/libs/grpcx"
	memberv1 "github.com/memberhub/memberhub/protos/gen/member/v1"
)

type grpcProvider struct {
	client memberv1.DirectoryServiceClient
}

// NewProvider dials the member directory service. An empty address
// disables the lookup.
func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: memberv1.NewDirectoryServiceClient(conn)}, nil
}

func (p *grpcProvider) GetMember(ctx context.Context, memberID string) (Member, error) {
	resp, err := p.client.GetMember(ctx, &memberv1.GetMemberRequest{MemberId: memberID})
	if err != nil {
		return Member{}, err
	}
	return Member{
		ID:       resp.GetMemberId(),
		Name:     resp.GetDisplayName(),
		Standing: resp.GetStanding(),
	}, nil
}
