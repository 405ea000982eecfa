package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "tickets.v1.TicketService"

const (
	MethodAddToCart       = "/" + ServiceName + "/AddToCart"
	MethodRemoveFromCart  = "/" + ServiceName + "/RemoveFromCart"
	MethodListCart        = "/" + ServiceName + "/ListCart"
	MethodCheckout        = "/" + ServiceName + "/Checkout"
	MethodListOrders      = "/" + ServiceName + "/ListOrders"
	MethodGetOrderSummary = "/" + ServiceName + "/GetOrderSummary"
	MethodCancelOrder     = "/" + ServiceName + "/CancelOrder"
	MethodPayOrder        = "/" + ServiceName + "/PayOrder"
	MethodPayUser         = "/" + ServiceName + "/PayUser"
)

// TicketServiceServer: серверная сторона TicketService.
type TicketServiceServer interface {
	AddToCart(context.Context, *AddToCartRequest) (*CartEntry, error)
	RemoveFromCart(context.Context, *RemoveFromCartRequest) (*CartEntry, error)
	ListCart(context.Context, *ListCartRequest) (*ListCartResponse, error)
	Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	GetOrderSummary(context.Context, *GetOrderSummaryRequest) (*OrderSummary, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*Order, error)
	PayOrder(context.Context, *PayOrderRequest) (*PaymentReceipt, error)
	PayUser(context.Context, *PayUserRequest) (*PaymentReceipt, error)
}

// unaryHandler строит grpc.MethodHandler для метода с типизированным запросом.
func unaryHandler[Req, Resp any](fullMethod string, call func(TicketServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TicketServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TicketServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc описывает TicketService для grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TicketServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddToCart", Handler: unaryHandler(MethodAddToCart, TicketServiceServer.AddToCart)},
		{MethodName: "RemoveFromCart", Handler: unaryHandler(MethodRemoveFromCart, TicketServiceServer.RemoveFromCart)},
		{MethodName: "ListCart", Handler: unaryHandler(MethodListCart, TicketServiceServer.ListCart)},
		{MethodName: "Checkout", Handler: unaryHandler(MethodCheckout, TicketServiceServer.Checkout)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, TicketServiceServer.ListOrders)},
		{MethodName: "GetOrderSummary", Handler: unaryHandler(MethodGetOrderSummary, TicketServiceServer.GetOrderSummary)},
		{MethodName: "CancelOrder", Handler: unaryHandler(MethodCancelOrder, TicketServiceServer.CancelOrder)},
		{MethodName: "PayOrder", Handler: unaryHandler(MethodPayOrder, TicketServiceServer.PayOrder)},
		{MethodName: "PayUser", Handler: unaryHandler(MethodPayUser, TicketServiceServer.PayUser)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tickets/v1/ticket_service",
}

// RegisterTicketServiceServer регистрирует реализацию на grpc.Server.
func RegisterTicketServiceServer(s grpc.ServiceRegistrar, srv TicketServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client: типизированный клиент TicketService поверх JSON-кодека.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient оборачивает соединение.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddToCart(ctx context.Context, in *AddToCartRequest, opts ...grpc.CallOption) (*CartEntry, error) {
	return invoke[CartEntry](ctx, c.cc, MethodAddToCart, in, opts)
}

func (c *Client) RemoveFromCart(ctx context.Context, in *RemoveFromCartRequest, opts ...grpc.CallOption) (*CartEntry, error) {
	return invoke[CartEntry](ctx, c.cc, MethodRemoveFromCart, in, opts)
}

func (c *Client) ListCart(ctx context.Context, in *ListCartRequest, opts ...grpc.CallOption) (*ListCartResponse, error) {
	return invoke[ListCartResponse](ctx, c.cc, MethodListCart, in, opts)
}

func (c *Client) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutResponse, error) {
	return invoke[CheckoutResponse](ctx, c.cc, MethodCheckout, in, opts)
}

func (c *Client) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, MethodListOrders, in, opts)
}

func (c *Client) GetOrderSummary(ctx context.Context, in *GetOrderSummaryRequest, opts ...grpc.CallOption) (*OrderSummary, error) {
	return invoke[OrderSummary](ctx, c.cc, MethodGetOrderSummary, in, opts)
}

func (c *Client) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[Order](ctx, c.cc, MethodCancelOrder, in, opts)
}

func (c *Client) PayOrder(ctx context.Context, in *PayOrderRequest, opts ...grpc.CallOption) (*PaymentReceipt, error) {
	return invoke[PaymentReceipt](ctx, c.cc, MethodPayOrder, in, opts)
}

func (c *Client) PayUser(ctx context.Context, in *PayUserRequest, opts ...grpc.CallOption) (*PaymentReceipt, error) {
	return invoke[PaymentReceipt](ctx, c.cc, MethodPayUser, in, opts)
}
