package api

import (
	"context"

	"yoyaku/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	reservationServiceName  = "yoyaku.reservation.v1.ReservationService"
	methodReserve           = "/" + reservationServiceName + "/Reserve"
	methodListReservations  = "/" + reservationServiceName + "/ListReservations"
	permReservationsWrite   = "reservations:write"
	permReservationsRead    = "reservations:read"
	reservationServiceProto = "yoyaku/reservation/v1/reservation.proto"
)

// ReservationServiceServer exchanges google.protobuf.Struct messages.
//
// Reserve expects {owner_id, item_name, start_date, end_date} and returns
// the reservation. ListReservations expects {item_name} and returns
// {reservations: [...]}.
type ReservationServiceServer interface {
	Reserve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListReservations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var reservationServiceDesc = grpc.ServiceDesc{
	ServiceName: reservationServiceName,
	HandlerType: (*ReservationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reserve", Handler: unaryHandler(methodReserve, ReservationServiceServer.Reserve)},
		{MethodName: "ListReservations", Handler: unaryHandler(methodListReservations, ReservationServiceServer.ListReservations)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: reservationServiceProto,
}

func unaryHandler(
	fullMethod string,
	call func(ReservationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReservationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReservationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ReservationGRPCService serves the reservation checker to other services.
type ReservationGRPCService struct {
	svc Services
}

func NewReservationGRPCService(svc Services) *ReservationGRPCService {
	return &ReservationGRPCService{svc: svc}
}

func (s *ReservationGRPCService) resolveItem(name string) error {
	if s.svc.Items.Empty() {
		return nil
	}
	_, err := s.svc.Items.GetItemByName(name)
	return err
}

func (s *ReservationGRPCService) Reserve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	ownerID := int64(fields["owner_id"].GetNumberValue())
	if ownerID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "owner_id is required")
	}
	itemName := fields["item_name"].GetStringValue()

	owner, err := s.svc.Users.GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, grpcError(err)
	}
	if itemName != "" {
		if err := s.resolveItem(itemName); err != nil {
			return nil, grpcError(err)
		}
	}

	r, err := s.svc.Reservations.Reserve(ctx, owner,
		itemName, fields["start_date"].GetStringValue(), fields["end_date"].GetStringValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(reservationFields(r))
}

func (s *ReservationGRPCService) ListReservations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	itemName := req.GetFields()["item_name"].GetStringValue()
	if itemName == "" {
		return nil, status.Error(codes.InvalidArgument, "item_name is required")
	}
	if err := s.resolveItem(itemName); err != nil {
		return nil, grpcError(err)
	}

	list, err := s.svc.Reservations.ListReservations(ctx, itemName)
	if err != nil {
		return nil, grpcError(err)
	}
	out := make([]any, 0, len(list))
	for _, r := range list {
		out = append(out, reservationFields(r))
	}
	return structpb.NewStruct(map[string]any{"reservations": out})
}

func reservationFields(r *models.Reservation) map[string]any {
	v := r.View()
	return map[string]any{
		"id":         v.ID,
		"item_name":  v.ItemName,
		"start_date": v.StartDate,
		"end_date":   v.EndDate,
		"status":     v.Status,
		"user_id":    v.UserID,
	}
}
