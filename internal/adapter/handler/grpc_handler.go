package handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
)

const CartServiceName = "storefront.v1.CartService"

type CartRequest struct {
	CustomerID string `json:"customer_id"`
}

type AddToCartRequest struct {
	CustomerID string `json:"customer_id"`
	ItemID     string `json:"item_id"`
	Quantity   int32  `json:"quantity"`
}

type RemoveFromCartRequest struct {
	CustomerID string `json:"customer_id"`
	ItemID     string `json:"item_id"`
}

type CheckoutRequest struct {
	CustomerID     string `json:"customer_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type CartReply struct {
	Lines []domain.CartLine `json:"lines"`
}

type OrderReply struct {
	Order *domain.Order `json:"order"`
}

type OrdersReply struct {
	Orders []domain.OrderDetails `json:"orders"`
}

// CartServer is the server API of the cart service.
type CartServer interface {
	GetCart(context.Context, *CartRequest) (*CartReply, error)
	AddToCart(context.Context, *AddToCartRequest) (*CartReply, error)
	RemoveFromCart(context.Context, *RemoveFromCartRequest) (*CartReply, error)
	Checkout(context.Context, *CheckoutRequest) (*OrderReply, error)
	ListOrders(context.Context, *CartRequest) (*OrdersReply, error)
}

var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: CartServiceName,
	HandlerType: (*CartServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetCart", CartServer.GetCart),
		unaryMethod("AddToCart", CartServer.AddToCart),
		unaryMethod("RemoveFromCart", CartServer.RemoveFromCart),
		unaryMethod("Checkout", CartServer.Checkout),
		unaryMethod("ListOrders", CartServer.ListOrders),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/cart",
}

func unaryMethod[Req, Resp any](name string, call func(CartServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CartServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + CartServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(CartServer), ctx, req.(*Req))
			})
		},
	}
}

// RegisterCartServer registers srv on s.
func RegisterCartServer(s grpc.ServiceRegistrar, srv CartServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

type GRPCHandler struct {
	svc Services
}

func NewGRPCHandler(svc Services) *GRPCHandler {
	return &GRPCHandler{svc: svc}
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *CartRequest) (*CartReply, error) {
	cart, err := h.svc.Cart.GetCart(ctx, req.CustomerID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &CartReply{Lines: cart.Lines()}, nil
}

func (h *GRPCHandler) AddToCart(ctx context.Context, req *AddToCartRequest) (*CartReply, error) {
	cart, err := h.svc.Cart.AddToCart(ctx, req.CustomerID, req.ItemID, int(req.Quantity))
	if err != nil {
		return nil, grpcError(err)
	}
	return &CartReply{Lines: cart.Lines()}, nil
}

func (h *GRPCHandler) RemoveFromCart(ctx context.Context, req *RemoveFromCartRequest) (*CartReply, error) {
	cart, err := h.svc.Cart.RemoveFromCart(ctx, req.CustomerID, req.ItemID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &CartReply{Lines: cart.Lines()}, nil
}

func (h *GRPCHandler) Checkout(ctx context.Context, req *CheckoutRequest) (*OrderReply, error) {
	order, err := h.svc.Checkout.Checkout(ctx, req.CustomerID, req.IdempotencyKey)
	if err != nil {
		return nil, grpcError(err)
	}
	return &OrderReply{Order: order}, nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, req *CartRequest) (*OrdersReply, error) {
	orders, err := h.svc.Orders.GetCustomerOrders(ctx, req.CustomerID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &OrdersReply{Orders: orders}, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrItemNotInCart):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// UnaryLogging attaches a request logger to the context and logs each call.
func UnaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	logger = logger.With(zap.String("component", "grpc_server"))
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(logging.ContextWithLogger(ctx, logger.With(zap.String("method", info.FullMethod))), req)
		logger.Info("grpc_access",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
		return resp, err
	}
}

// CartClient calls the cart service using the JSON codec.
type CartClient struct {
	cc grpc.ClientConnInterface
}

func NewCartClient(cc grpc.ClientConnInterface) *CartClient {
	return &CartClient{cc: cc}
}

func (c *CartClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+CartServiceName+"/"+method, in, out, opts...)
}

func (c *CartClient) GetCart(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*CartReply, error) {
	out := new(CartReply)
	if err := c.invoke(ctx, "GetCart", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartClient) AddToCart(ctx context.Context, in *AddToCartRequest, opts ...grpc.CallOption) (*CartReply, error) {
	out := new(CartReply)
	if err := c.invoke(ctx, "AddToCart", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartClient) RemoveFromCart(ctx context.Context, in *RemoveFromCartRequest, opts ...grpc.CallOption) (*CartReply, error) {
	out := new(CartReply)
	if err := c.invoke(ctx, "RemoveFromCart", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*OrderReply, error) {
	out := new(OrderReply)
	if err := c.invoke(ctx, "Checkout", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartClient) ListOrders(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*OrdersReply, error) {
	out := new(OrdersReply)
	if err := c.invoke(ctx, "ListOrders", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
