// Package rpc serves metric streams over gRPC.
//
// The service is declared by hand rather than generated: its only method,
// Get, is server streaming and every response message is one batch in the
// codec wire format.
//
//	service MetricService {
//	  rpc Get(MetricRequest) returns (stream MetricResponse);
//	}
package rpc

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/idudko/go-metric-stream/internal/audit"
	"github.com/idudko/go-metric-stream/internal/batch"
	"github.com/idudko/go-metric-stream/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "metricstream.MetricService"

const getMethod = "/" + ServiceName + "/Get"

// MetricStreamServer is the server API of the metric service.
type MetricStreamServer interface {
	Get(stream grpc.ServerStream) error
}

var getStreamDesc = grpc.StreamDesc{
	StreamName:    "Get",
	ServerStreams: true,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MetricStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    getStreamDesc.StreamName,
			ServerStreams: getStreamDesc.ServerStreams,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(MetricStreamServer).Get(stream)
			},
		},
	},
	Metadata: "metric_service.proto",
}

// Server streams the metric tree to every caller of Get.
type Server struct {
	service *service.MetricService
	audit   *audit.Subject
	server  *grpc.Server
}

// NewServer returns a gRPC server for svc. subject may be nil.
func NewServer(svc *service.MetricService, subject *audit.Subject, opts ...grpc.ServerOption) *Server {
	opts = append(opts, grpc.ForceServerCodec(rawCodec{}))
	s := &Server{
		service: svc,
		audit:   subject,
		server:  grpc.NewServer(opts...),
	}
	s.server.RegisterService(&serviceDesc, s)
	return s
}

// Get handles one stream. The request body is ignored: every call streams
// the whole tree.
func (s *Server) Get(stream grpc.ServerStream) error {
	var req []byte
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}

	sink := &streamSink{stream: stream}
	stats, err := s.service.Get(sink)

	ip := ""
	if p, ok := peer.FromContext(stream.Context()); ok {
		ip = p.Addr.String()
		if host, _, splitErr := net.SplitHostPort(ip); splitErr == nil {
			ip = host
		}
	}
	s.audit.NotifyAll(audit.NewStreamEvent("grpc", ip, stats.Batches, stats.Entries, err))

	return sink.result()
}

// Start listens on address and serves until ctx is done.
func (s *Server) Start(ctx context.Context, address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	log.Info().Str("address", address).Msg("Starting gRPC server")
	s.Serve(ctx, lis)
	return nil
}

// Serve accepts connections on lis in the background. When ctx is done the
// server stops gracefully, letting running streams finish.
func (s *Server) Serve(ctx context.Context, lis net.Listener) {
	go func() {
		if err := s.server.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down gRPC server gracefully...")
		s.server.GracefulStop()
	}()
}

// streamSink adapts a server stream to batch.Sink. Finish only records the
// status; the stream is closed when the handler returns it.
type streamSink struct {
	stream   grpc.ServerStream
	status   error
	finished bool
}

func (s *streamSink) Write(b []byte) error {
	return s.stream.SendMsg(b)
}

func (s *streamSink) Finish(status error) error {
	s.status = status
	s.finished = true
	return nil
}

func (s *streamSink) result() error {
	if !s.finished {
		return status.Error(codes.Internal, "metric stream was not finished")
	}
	return statusFromError(s.status)
}

func statusFromError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, batch.ErrEncoding):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, batch.ErrSinkWrite):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
