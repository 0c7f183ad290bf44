package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Doctor0Evil/WordMath/internal/auth"
	"github.com/Doctor0Evil/WordMath/internal/engine"
	"github.com/Doctor0Evil/WordMath/internal/features"
	"github.com/Doctor0Evil/WordMath/internal/guard"
	"github.com/Doctor0Evil/WordMath/internal/registry"
)

// GuardServer implements the GuardService gRPC service.
type GuardServer struct {
	registry *registry.Registry
	auth     auth.Authenticator // nil disables auth
	logger   *zap.Logger
}

// NewGuardServer creates a new GuardServer with the given dependencies.
func NewGuardServer(reg *registry.Registry, authenticator auth.Authenticator, logger *zap.Logger) *GuardServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardServer{
		registry: reg,
		auth:     authenticator,
		logger:   logger,
	}
}

// Assess implements the GuardService.Assess RPC.
func (s *GuardServer) Assess(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	// 1. Authenticate
	var principal *auth.Principal
	if s.auth != nil {
		token, err := auth.TokenFromMetadata(ctx)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "auth failed: %v", err)
		}
		principal, err = s.auth.Authenticate(ctx, token)
		if errors.Is(err, auth.ErrAuthUnavailable) {
			return nil, status.Errorf(codes.Unavailable, "auth failed: %v", err)
		}
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "auth failed: %v", err)
		}
	}

	// 2. Decode the request document
	in, err := parseAssessRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.profile == "" && principal != nil {
		in.profile = principal.Profile
	}

	// 3. Resolve the profile's guard
	g, err := s.registry.Get(ctx, in.profile)
	if errors.Is(err, registry.ErrProfileNotFound) {
		return nil, status.Errorf(codes.NotFound, "profile %q not found", in.profile)
	}
	if err != nil {
		s.logger.Error("failed to resolve profile", zap.String("profile", in.profile), zap.Error(err))
		return nil, status.Error(codes.Unavailable, "failed to load profile")
	}

	// 4. Assess. A sink failure still returns the decision.
	d, err := g.Assess(ctx, in.tokens, in.message, in.topic)
	var logErr *guard.LogError
	switch {
	case err == nil, errors.As(err, &logErr):
	case errors.Is(err, features.ErrShapeMismatch):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	default:
		return nil, status.Errorf(codes.Internal, "assess: %v", err)
	}

	fields := decisionFields(d, g.Profile())
	fields["latency_ms"] = float64(time.Since(start)) / float64(time.Millisecond)
	if logErr != nil {
		fields["log_error"] = logErr.Error()
	}

	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

type assessRequest struct {
	profile string
	tokens  []string
	message []float64
	topic   []float64
}

func parseAssessRequest(req *structpb.Struct) (assessRequest, error) {
	var out assessRequest
	fields := req.GetFields()

	if v, ok := fields["profile"]; ok {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return out, errors.New("profile must be a string")
		}
		out.profile = sv.StringValue
	}

	for _, item := range fields["tokens"].GetListValue().GetValues() {
		sv, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return out, errors.New("tokens must be a list of strings")
		}
		out.tokens = append(out.tokens, sv.StringValue)
	}

	var err error
	if out.message, err = numberList(fields, "message_vector"); err != nil {
		return out, err
	}
	if out.topic, err = numberList(fields, "topic_vector"); err != nil {
		return out, err
	}
	return out, nil
}

func numberList(fields map[string]*structpb.Value, key string) ([]float64, error) {
	values := fields[key].GetListValue().GetValues()
	out := make([]float64, 0, len(values))
	for _, item := range values {
		nv, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%s must be a list of numbers", key)
		}
		out = append(out, nv.NumberValue)
	}
	return out, nil
}

func decisionFields(d engine.Decision, profile string) map[string]any {
	if profile == "" {
		profile = registry.DefaultProfile
	}
	names := d.TriggerNames()
	triggers := make([]any, len(names))
	for i, n := range names {
		triggers[i] = n
	}
	return map[string]any{
		"y":              d.Y,
		"z":              d.Z,
		"f":              d.F,
		"risk_band":      d.Band.String(),
		"triggers":       triggers,
		"trace_id":       d.TraceID,
		"profile":        profile,
		"action":         guard.Decide(d).String(),
		"should_block":   guard.ShouldBlock(d),
		"should_rewrite": guard.ShouldRewrite(d),
	}
}
