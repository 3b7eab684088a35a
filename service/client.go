package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, checkMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Tables(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, tablesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckDocument sends a decoded request document, e.g. one read from yaml.
func (c *Client) CheckDocument(ctx context.Context, doc map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, err
	}
	out, err := c.Check(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
