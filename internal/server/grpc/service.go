package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/dmitrijs2005/bantx/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "bantx.auth.v1.AuthService"

const (
	MethodLogin   = "/" + ServiceName + "/Login"
	MethodRefresh = "/" + ServiceName + "/Refresh"
	MethodLogout  = "/" + ServiceName + "/Logout"
	MethodMe      = "/" + ServiceName + "/Me"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type Empty struct{}

// Authenticator is the part of services.AuthService served over gRPC.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	CurrentUser(ctx context.Context, id string) (*models.User, error)
	IdentityResolver
}

type authServer struct {
	auth Authenticator
}

func (s *authServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	sess, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}
	return &LoginResponse{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken, User: sess.User}, nil
}

func (s *authServer) Refresh(ctx context.Context, req *RefreshRequest) (*RefreshResponse, error) {
	access, err := s.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		st := toStatus(err)
		if status.Code(st) == codes.Internal {
			return nil, st
		}
		return nil, status.Error(codes.PermissionDenied, "invalid or expired refresh token")
	}
	return &RefreshResponse{AccessToken: access}, nil
}

func (s *authServer) Logout(ctx context.Context, req *LogoutRequest) (*Empty, error) {
	if err := s.auth.Logout(ctx, req.RefreshToken); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *authServer) Me(ctx context.Context, _ *Empty) (*models.User, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	u, err := s.auth.CurrentUser(ctx, id.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return u, nil
}

func unary[Req, Resp any](method string, call func(*authServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	_, name := splitMethod(method)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*authServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

func splitMethod(full string) (service, method string) {
	i := strings.LastIndex(full, "/")
	return strings.TrimPrefix(full[:i+1], "/"), full[i+1:]
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodLogin, (*authServer).Login),
		unary(MethodRefresh, (*authServer).Refresh),
		unary(MethodLogout, (*authServer).Logout),
		unary(MethodMe, (*authServer).Me),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bantx/auth/v1/auth.proto",
}
