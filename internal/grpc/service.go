package server

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tejusbharadwaj/seriesfetch/internal/aggregate"
	"github.com/tejusbharadwaj/seriesfetch/internal/fetch"
	middleware "github.com/tejusbharadwaj/seriesfetch/internal/grpc/middlewares"
	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "seriesfetch.v1.SeriesService"

// Backend answers the service's requests. *fetch.Orchestrator implements it.
type Backend interface {
	FetchAggregated(ctx context.Context, userID, seriesKey, start, end, gran string, includeEmpty bool) (fetch.Result, error)
	Visualize(ctx context.Context, userID, seriesKey, date, gran string) (fetch.Visualization, error)
	CalendarView(ctx context.Context, userID, seriesKey, date, gran string) ([]aggregate.DataPoint, error)
	ListSeries(ctx context.Context, userID string) ([]series.Descriptor, error)
}

// SeriesServiceServer is the server API of SeriesService.
type SeriesServiceServer interface {
	FetchAggregated(context.Context, *FetchRequest) (*FetchResponse, error)
	Visualize(context.Context, *CalendarRequest) (*VisualizeResponse, error)
	CalendarView(context.Context, *CalendarRequest) (*CalendarViewResponse, error)
	ListSeries(context.Context, *ListSeriesRequest) (*ListSeriesResponse, error)
}

// SeriesService validates requests, calls the backend and maps its errors
// to status codes.
type SeriesService struct {
	backend   Backend
	validator *RequestValidator
	logger    logrus.FieldLogger
}

// NewSeriesService creates a new service instance
func NewSeriesService(backend Backend, validator *RequestValidator, logger logrus.FieldLogger) *SeriesService {
	return &SeriesService{
		backend:   backend,
		validator: validator,
		logger:    logger,
	}
}

func (s *SeriesService) FetchAggregated(ctx context.Context, req *FetchRequest) (*FetchResponse, error) {
	if err := s.validator.ValidateFetch(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.backend.FetchAggregated(ctx, req.UserID, req.Series, req.Start, req.End, req.Granularity, req.IncludeEmpty)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &FetchResponse{
		Series:      res.Series,
		Start:       res.Start,
		End:         res.End,
		Granularity: res.Granularity.String(),
		Points:      res.Points,
		Summary:     res.Summary,
	}, nil
}

func (s *SeriesService) Visualize(ctx context.Context, req *CalendarRequest) (*VisualizeResponse, error) {
	if err := s.validator.ValidateCalendar(req, true); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	viz, err := s.backend.Visualize(ctx, req.UserID, req.Series, req.Date, req.Granularity)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &VisualizeResponse{Text: viz.Text, Spec: viz.Spec}, nil
}

func (s *SeriesService) CalendarView(ctx context.Context, req *CalendarRequest) (*CalendarViewResponse, error) {
	if err := s.validator.ValidateCalendar(req, false); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	points, err := s.backend.CalendarView(ctx, req.UserID, req.Series, req.Date, req.Granularity)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &CalendarViewResponse{Points: points}, nil
}

func (s *SeriesService) ListSeries(ctx context.Context, req *ListSeriesRequest) (*ListSeriesResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing user id")
	}

	descs, err := s.backend.ListSeries(ctx, req.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ListSeriesResponse{Series: descs}, nil
}

// toStatus maps backend errors to gRPC status codes. Unexpected errors are
// logged and reported as Internal.
func (s *SeriesService) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, fetch.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, fetch.ErrUnknownSeries), errors.Is(err, fetch.ErrNoData):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	s.logger.WithField("request_id", middleware.RequestIDFromContext(ctx)).
		WithError(err).Error("Query failed")
	return status.Errorf(codes.Internal, "query failed: %v", err)
}

// RegisterSeriesServiceServer registers srv on s.
func RegisterSeriesServiceServer(s grpc.ServiceRegistrar, srv SeriesServiceServer) {
	s.RegisterService(&SeriesService_ServiceDesc, srv)
}

func _SeriesService_FetchAggregated_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SeriesServiceServer).FetchAggregated(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/FetchAggregated",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SeriesServiceServer).FetchAggregated(ctx, req.(*FetchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SeriesService_Visualize_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CalendarRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SeriesServiceServer).Visualize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Visualize",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SeriesServiceServer).Visualize(ctx, req.(*CalendarRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SeriesService_CalendarView_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CalendarRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SeriesServiceServer).CalendarView(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/CalendarView",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SeriesServiceServer).CalendarView(ctx, req.(*CalendarRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SeriesService_ListSeries_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListSeriesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SeriesServiceServer).ListSeries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/ListSeries",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SeriesServiceServer).ListSeries(ctx, req.(*ListSeriesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// SeriesService_ServiceDesc is the grpc.ServiceDesc for SeriesService.
var SeriesService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SeriesServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FetchAggregated", Handler: _SeriesService_FetchAggregated_Handler},
		{MethodName: "Visualize", Handler: _SeriesService_Visualize_Handler},
		{MethodName: "CalendarView", Handler: _SeriesService_CalendarView_Handler},
		{MethodName: "ListSeries", Handler: _SeriesService_ListSeries_Handler},
	},
	Streams: []grpc.StreamDesc{},
}

// SeriesServiceClient calls SeriesService with the JSON codec.
type SeriesServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSeriesServiceClient(cc grpc.ClientConnInterface) *SeriesServiceClient {
	return &SeriesServiceClient{cc: cc}
}

func (c *SeriesServiceClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *SeriesServiceClient) FetchAggregated(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (*FetchResponse, error) {
	out := new(FetchResponse)
	if err := c.invoke(ctx, "FetchAggregated", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SeriesServiceClient) Visualize(ctx context.Context, in *CalendarRequest, opts ...grpc.CallOption) (*VisualizeResponse, error) {
	out := new(VisualizeResponse)
	if err := c.invoke(ctx, "Visualize", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SeriesServiceClient) CalendarView(ctx context.Context, in *CalendarRequest, opts ...grpc.CallOption) (*CalendarViewResponse, error) {
	out := new(CalendarViewResponse)
	if err := c.invoke(ctx, "CalendarView", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SeriesServiceClient) ListSeries(ctx context.Context, in *ListSeriesRequest, opts ...grpc.CallOption) (*ListSeriesResponse, error) {
	out := new(ListSeriesResponse)
	if err := c.invoke(ctx, "ListSeries", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

var _ SeriesServiceServer = (*SeriesService)(nil)
