package grpcapi

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// codeFor сопоставляет виды доменных ошибок с кодами gRPC.
func codeFor(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return codes.Unauthenticated
	case errors.Is(err, auth.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}

	switch domain.Kind(err) {
	case "not_found":
		return codes.NotFound
	case "invalid_quantity", "invalid_amount", "validation":
		return codes.InvalidArgument
	case "duplicate":
		return codes.AlreadyExists
	case "empty_cart", "invalid_transition", "unavailable":
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// toStatus переводит ошибку сервиса в gRPC-статус. Готовые статусы не трогает.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codeFor(err)
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

// ErrorInterceptor логирует вызов и переводит ошибки в статусы.
func ErrorInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.WithField("component", "grpc")
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)

		entry := logger.WithFields(log.Fields{
			"method":      info.FullMethod,
			"code":        codeFor(err).String(),
			"duration_ms": time.Since(started).Milliseconds(),
		})
		switch code := codeFor(err); {
		case code == codes.Internal:
			entry.WithError(err).Error("grpc call failed")
		case err != nil:
			entry.Debug("grpc call rejected")
		default:
			entry.Debug("grpc call")
		}
		return resp, toStatus(err)
	}
}

// AuthInterceptor проверяет bearer-токен из metadata "authorization".
// Health-сервис пропускается без токена.
func AuthInterceptor(verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if verifier == nil || info.FullMethod == "/grpc.health.v1.Health/Check" {
			return handler(ctx, req)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}
		raw, err := auth.BearerToken(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		identity, err := verifier.Verify(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(auth.WithIdentity(ctx, identity), req)
	}
}

// BearerCredentials добавляет токен в metadata каждого вызова клиента.
func BearerCredentials(token string) grpc.CallOption {
	return grpc.PerRPCCredsCallOption{Creds: bearerCreds(token)}
}

type bearerCreds string

func (c bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(c)}, nil
}

func (bearerCreds) RequireTransportSecurity() bool {
	return false
}
