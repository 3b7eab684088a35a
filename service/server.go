package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"opti-sql-sema/Expr"
	"opti-sql-sema/catalog"
	"opti-sql-sema/config"
	"opti-sql-sema/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName   = "sema.TypeChecker"
	checkMethod   = "/" + serviceName + "/Check"
	tablesMethod  = "/" + serviceName + "/Tables"
	protoMetadata = "sema.proto"
)

// TypeCheckerServer is the service contract. Messages are structpb.Struct so
// the wire format needs no generated code:
//
//	Check   {expr, scope: [{table, alias}], options: {fail_fast, uniform_traversal}}
//	     -> {type, aggregate, attributes: [{alias, column}], canonical,
//	         diagnostics: [{node, message, types}]}
//	Tables  {table?} -> {tables: [{name, columns: [{name, type, canonical, nullable}]}]}
type TypeCheckerServer interface {
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Tables(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TypeCheckerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: checkHandler},
		{MethodName: "Tables", Handler: tablesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: protoMetadata,
}

func RegisterTypeCheckerServer(s grpc.ServiceRegistrar, srv TypeCheckerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func checkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TypeCheckerServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TypeCheckerServer).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func tablesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TypeCheckerServer).Tables(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: tablesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TypeCheckerServer).Tables(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Options are the per-server defaults; a request may override the checker
// flags.
type Options struct {
	Checker      Expr.Options
	MaxDepth     int
	MaxRecvBytes int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Checker: Expr.Options{
			FailFast:         cfg.Checker.FailFast,
			UniformTraversal: cfg.Checker.UniformTraversal,
		},
		MaxDepth:     cfg.Checker.MaxDepth,
		MaxRecvBytes: cfg.MaxRequestBytes(),
	}
}

// Server answers type-check requests against a catalog that is only read.
type Server struct {
	catalog *catalog.ArrowCatalog
	opts    Options
	log     *logger.Logger
	grpc    *grpc.Server
}

var _ TypeCheckerServer = (*Server)(nil)

func NewServer(cat *catalog.ArrowCatalog, opts Options, log *logger.Logger) *Server {
	s := &Server{catalog: cat, opts: opts, log: log.Named("service")}
	serverOpts := []grpc.ServerOption{grpc.UnaryInterceptor(s.logRequests)}
	if opts.MaxRecvBytes > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(opts.MaxRecvBytes))
	}
	s.grpc = grpc.NewServer(serverOpts...)
	RegisterTypeCheckerServer(s.grpc, s)
	return s
}

func (s *Server) logRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

// Check decodes the request document and analyzes it. A malformed document is
// InvalidArgument; a type error is a normal response with diagnostics.
func (s *Server) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc := req.AsMap()
	e, scope, err := Expr.NewDecoder(s.opts.MaxDepth).DecodeRequest(doc)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	opts, err := s.requestOptions(doc["options"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	opts.Reporter = Expr.LogReporter{Log: s.log}
	a := Expr.Analyze(e, s.catalog, scope, opts)
	out, err := structpb.NewStruct(AnalysisToMap(a))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) requestOptions(raw any) (Expr.Options, error) {
	opts := s.opts.Checker
	if raw == nil {
		return opts, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return opts, fmt.Errorf("options: expected a map, got %T", raw)
	}
	for key, dst := range map[string]*bool{
		"fail_fast":         &opts.FailFast,
		"uniform_traversal": &opts.UniformTraversal,
	} {
		v, present := m[key]
		if !present {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return opts, fmt.Errorf("options.%s: expected a bool, got %T", key, v)
		}
		*dst = b
	}
	return opts, nil
}

// Tables lists the catalog, or one table when the request names it.
func (s *Server) Tables(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	names := s.catalog.Tables()
	if v, ok := req.GetFields()["table"]; ok {
		name := v.GetStringValue()
		if _, found := s.catalog.ArrowSchema(name); !found {
			return nil, status.Error(codes.NotFound, catalog.ErrUnknownTable(name).Error())
		}
		names = []string{name}
	}
	tables := make([]any, 0, len(names))
	for _, name := range names {
		schema, _ := s.catalog.ArrowSchema(name)
		cols := make([]any, 0, len(schema.Fields()))
		for _, f := range schema.Fields() {
			cols = append(cols, map[string]any{
				"name":      f.Name,
				"type":      f.Type.String(),
				"canonical": catalog.ArrowType{DataType: f.Type}.CanonicalName(),
				"nullable":  f.Nullable,
			})
		}
		tables = append(tables, map[string]any{"name": name, "columns": cols})
	}
	out, err := structpb.NewStruct(map[string]any{"tables": tables})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// AnalysisToMap renders an analysis in the Check response shape.
func AnalysisToMap(a Expr.Analysis) map[string]any {
	attrs := make([]any, len(a.Attributes))
	for i, at := range a.Attributes {
		attrs[i] = map[string]any{"alias": at.Alias, "column": at.Column}
	}
	diags := make([]any, len(a.Diagnostics))
	for i, d := range a.Diagnostics {
		types := make([]any, len(d.Types))
		for j, t := range d.Types {
			types[j] = t.String()
		}
		diags[i] = map[string]any{"node": d.Node, "message": d.Message(), "types": types}
	}
	return map[string]any{
		"type":        a.Type.String(),
		"aggregate":   a.Aggregate,
		"attributes":  attrs,
		"canonical":   a.Canonical,
		"diagnostics": diags,
	}
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("type checker listening", "addr", lis.Addr().String(), "tables", s.catalog.Len())
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// Start listens on the configured address and serves in the background. The
// returned channel is closed once the server has stopped.
func Start(cfg *config.Config, cat *catalog.ArrowCatalog, log *logger.Logger) (*Server, <-chan struct{}, error) {
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s := NewServer(cat, OptionsFromConfig(cfg), log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Serve(lis); err != nil {
			s.log.Error("serve failed", "error", err)
		}
	}()
	return s, done, nil
}
