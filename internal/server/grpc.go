package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"MarginlyLedger/internal/observability"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"github.com/sugawarayuuta/sonnet"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxBodyBytes bounds HTTP request bodies.
const maxBodyBytes = 1 << 20

// GRPCServer wraps the gRPC server and the HTTP/JSON gateway.
type GRPCServer struct {
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	handlers      *Handlers
	interceptor   grpc.UnaryServerInterceptor
	healthChecker *observability.HealthChecker
	logger        zerolog.Logger
}

// ServerDeps holds everything needed by the RPC surface.
type ServerDeps struct {
	Handlers      *Handlers
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
}

// NewGRPCServer creates a gRPC server with the Marginly, health and reflection services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	logger := observability.NewLogger("server")
	interceptor := UnaryInterceptor(deps.Metrics, logger)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(interceptor))

	RegisterMarginlyServiceServer(grpcServer, deps.Handlers)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		healthServer:  healthServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		handlers:      deps.Handlers,
		interceptor:   interceptor,
		healthChecker: deps.HealthChecker,
		logger:        logger,
	}
}

// GRPC exposes the underlying server, e.g. for serving on a custom listener.
func (s *GRPCServer) GRPC() *grpc.Server {
	return s.grpcServer
}

// StartGRPC starts the gRPC server (blocking). After ctx is cancelled it
// returns only once in-flight calls have finished.
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	err = s.grpcServer.Serve(lis)
	if ctx.Err() != nil {
		<-stopped
	}
	return err
}

// StartHTTPGateway serves the HTTP/JSON routes (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	handler, err := s.HTTPHandler()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for open requests
	<-stopped
	return nil
}

// HTTPHandler builds the gateway mux plus health endpoints.
//
//	POST /v1/encode              EncodeAction
//	POST /v1/orders              OpenLeveraged
//	POST /v1/orders/close        CloseLeveraged
//	GET  /v1/positions/{user}    PreviewPosition (?cached=true for the stored preview)
//	POST /v1/intents             SubmitIntent
//	GET  /v1/admin/integrity     VerifyIntegrity
func (s *GRPCServer) HTTPHandler() (http.Handler, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method, pattern, rpc string
		call                 unaryMethod
		request              func(*http.Request, map[string]string) (*structpb.Struct, error)
	}{
		{"POST", "/v1/encode", "EncodeAction", MarginlyServiceServer.EncodeAction, bodyRequest},
		{"POST", "/v1/orders", "OpenLeveraged", MarginlyServiceServer.OpenLeveraged, bodyRequest},
		{"POST", "/v1/orders/close", "CloseLeveraged", MarginlyServiceServer.CloseLeveraged, bodyRequest},
		{"GET", "/v1/positions/{user}", "PreviewPosition", MarginlyServiceServer.PreviewPosition, previewRequestFromPath},
		{"POST", "/v1/intents", "SubmitIntent", MarginlyServiceServer.SubmitIntent, bodyRequest},
		{"GET", "/v1/admin/integrity", "VerifyIntegrity", MarginlyServiceServer.VerifyIntegrity, emptyRequest},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, s.route(rt.rpc, rt.call, rt.request)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)
	return httpMux, nil
}

// route adapts one RPC to an HTTP handler, running it through the interceptor.
func (s *GRPCServer) route(
	rpc string,
	call unaryMethod,
	request func(*http.Request, map[string]string) (*structpb.Struct, error),
) runtime.HandlerFunc {
	info := &grpc.UnaryServerInfo{Server: s.handlers, FullMethod: FullMethod(rpc)}
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		in, err := request(r, pathParams)
		if err != nil {
			writeError(w, status.Error(codes.InvalidArgument, err.Error()))
			return
		}

		resp, err := s.interceptor(r.Context(), in, info, func(ctx context.Context, req any) (any, error) {
			return call(s.handlers, ctx, req.(*structpb.Struct))
		})
		if err != nil {
			writeError(w, err)
			return
		}

		data, err := resp.(*structpb.Struct).MarshalJSON()
		if err != nil {
			writeError(w, status.Error(codes.Internal, err.Error()))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func bodyRequest(r *http.Request, _ map[string]string) (*structpb.Struct, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	in := new(structpb.Struct)
	if len(data) == 0 {
		return in, nil
	}
	if err := in.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	return in, nil
}

func previewRequestFromPath(r *http.Request, pathParams map[string]string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"user":   pathParams["user"],
		"cached": r.URL.Query().Get("cached") == "true",
	})
}

func emptyRequest(*http.Request, map[string]string) (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}

type errorBody struct {
	Code    int32  `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	data, _ := sonnet.Marshal(errorBody{
		Code:    int32(st.Code()),
		Status:  st.Code().String(),
		Message: st.Message(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(runtime.HTTPStatusFromCode(st.Code()))
	w.Write(data)
}
