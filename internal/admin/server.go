// Package admin exposes a read-only gRPC introspection surface: catalog
// listing plus the disk's allocated-page count and engine uptime for
// operational tooling. No buffer-pool counters are reported. Grounded on the reference engine's cmd/server/main.go,
// which hand-registers a grpc.ServiceDesc rather than depending on
// protoc-generated stubs. This surface never accepts DML/DDL SQL text — the
// SQL executor stays out of scope.
package admin

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"google.golang.org/grpc"

	"github.com/quill-run/minidb/internal/catalog"
)

// TableSummary describes one catalog table for StatusResponse.
type TableSummary struct {
	Name       string
	ColumnCount int
	IndexCount  int
}

// StatusRequest carries no fields; present for symmetry with a generated
// stub and forward compatibility.
type StatusRequest struct{}

// StatusResponse reports catalog contents, the allocated-page count, and
// uptime in both raw and human-readable form.
type StatusResponse struct {
	Tables []TableSummary

	AllocatedPages      uint32
	AllocatedPagesHuman string

	Uptime      time.Duration
	UptimeHuman string
}

// StatsSource is the read-only view the admin server consumes; Engine
// implements it.
type StatsSource interface {
	Catalog() *catalog.Catalog
	NumAllocatedPages() uint32
	Uptime() time.Duration
}

// Server implements AdminServer over a StatsSource.
type Server struct {
	src StatsSource
}

// New builds a Server over src.
func New(src StatsSource) *Server { return &Server{src: src} }

// AdminServer is the hand-written service interface registered below,
// matching the reference engine's TinySQLServer pattern.
type AdminServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

// Register attaches Server to s as the "storageengine.Admin" service.
func Register(s *grpc.Server, srv AdminServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "storageengine.Admin",
		HandlerType: (*AdminServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Status", Handler: _Admin_Status_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "admin",
	}, srv)
}

func _Admin_Status_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/storageengine.Admin/Status"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(AdminServer).Status(ctx, req.(*StatusRequest)) }
	return interceptor(ctx, in, info, handler)
}

// Status implements AdminServer: a read-only snapshot, never touching DML.
func (s *Server) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	cat := s.src.Catalog()
	tables := cat.ListTables()
	summaries := make([]TableSummary, 0, len(tables))
	for _, ti := range tables {
		indexes, err := cat.GetTableIndexes(ti.Name)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, TableSummary{
			Name:        ti.Name,
			ColumnCount: len(ti.Schema.Columns),
			IndexCount:  len(indexes),
		})
	}

	pages := s.src.NumAllocatedPages()
	uptime := s.src.Uptime()
	return &StatusResponse{
		Tables:              summaries,
		AllocatedPages:      pages,
		AllocatedPagesHuman: humanize.Bytes(uint64(pages) * 4096),
		Uptime:              uptime,
		UptimeHuman:         humanize.RelTime(time.Now().Add(-uptime), time.Now(), "ago", "from now"),
	}, nil
}
