package api

import (
	"context"
	"fmt"
	"time"

	"yoyaku/internal/config"
	"yoyaku/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReservationClient calls the reservation gRPC service with API-key metadata.
type ReservationClient struct {
	conn     grpc.ClientConnInterface
	auth     config.APIAuthConfig
	apiKey   string
	apiExtra string
	timeout  time.Duration
}

func NewReservationClient(conn grpc.ClientConnInterface, auth config.APIAuthConfig, apiKey, apiExtra string) *ReservationClient {
	return &ReservationClient{
		conn:     conn,
		auth:     auth,
		apiKey:   apiKey,
		apiExtra: apiExtra,
		timeout:  10 * time.Second,
	}
}

func (c *ReservationClient) outgoing(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, c.auth.HeaderAPIKey, c.apiKey, c.auth.HeaderExtra, c.apiExtra)
	}
	return ctx, cancel
}

func (c *ReservationClient) Reserve(ctx context.Context, ownerID int64, itemName, start, end string) (models.ReservationView, error) {
	req, err := structpb.NewStruct(map[string]any{
		"owner_id":   ownerID,
		"item_name":  itemName,
		"start_date": start,
		"end_date":   end,
	})
	if err != nil {
		return models.ReservationView{}, err
	}

	ctx, cancel := c.outgoing(ctx)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodReserve, req, out); err != nil {
		return models.ReservationView{}, err
	}
	return viewFromStruct(out), nil
}

func (c *ReservationClient) ListReservations(ctx context.Context, itemName string) ([]models.ReservationView, error) {
	req, err := structpb.NewStruct(map[string]any{"item_name": itemName})
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.outgoing(ctx)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodListReservations, req, out); err != nil {
		return nil, err
	}

	values := out.GetFields()["reservations"].GetListValue().GetValues()
	list := make([]models.ReservationView, 0, len(values))
	for _, v := range values {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("unexpected reservation entry %v", v)
		}
		list = append(list, viewFromStruct(s))
	}
	return list, nil
}

func viewFromStruct(s *structpb.Struct) models.ReservationView {
	f := s.GetFields()
	return models.ReservationView{
		ID:        int64(f["id"].GetNumberValue()),
		ItemName:  f["item_name"].GetStringValue(),
		StartDate: f["start_date"].GetStringValue(),
		EndDate:   f["end_date"].GetStringValue(),
		Status:    f["status"].GetStringValue(),
		UserID:    int64(f["user_id"].GetNumberValue()),
	}
}
