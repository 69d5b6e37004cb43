package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// IdentityResolver turns an access token into the caller's identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, accessToken string) (models.Identity, error)
}

// protectedMethods lists the RPCs that need a valid access token.
var protectedMethods = map[string]bool{
	MethodMe: true,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !protectedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	accessToken := tokenFromMetadata(ctx)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := s.resolver.ResolveIdentity(ctx, accessToken)
	if err != nil {
		st := toStatus(err)
		if status.Code(st) == codes.Internal {
			s.logger.Error(ctx, "resolve identity failed", "method", info.FullMethod, "error", err)
		}
		return nil, st
	}

	return handler(auth.WithIdentity(ctx, id), req)
}

// tokenFromMetadata accepts "authorization: Bearer <token>" or a raw
// access_token entry.
func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
		if token, ok := auth.ParseBearer(values[0]); ok {
			return token
		}
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
		return values[0]
	}
	return ""
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "token expired")
	case errors.Is(err, common.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid email or password")
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrTokenRevoked):
		return status.Error(codes.PermissionDenied, "access denied")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
