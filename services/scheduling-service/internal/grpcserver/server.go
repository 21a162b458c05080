//go:build protogen

package grpcserver

import (
	"context"
	"time"

	schedulingv1 "github.com/memberhub/memberhub/protos/gen/scheduling/v1"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/booking"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// server exposes the day schedule and availability policy to sibling
// services over gRPC, e.g. the portal backend rendering a staff dashboard.
type server struct {
	schedulingv1.UnimplementedSchedulingServiceServer
	svc *booking.Service
}

func Register(grpcServer *grpc.Server, svc *booking.Service) {
	schedulingv1.RegisterSchedulingServiceServer(grpcServer, &server{svc: svc})
}

func (s *server) GetDaySchedule(ctx context.Context, req *schedulingv1.DayScheduleRequest) (*schedulingv1.DayScheduleResponse, error) {
	appts, err := s.svc.AppointmentsOnDate(ctx, req.GetDate())
	if err != nil {
		return nil, err
	}

	resp := &schedulingv1.DayScheduleResponse{Date: req.GetDate()}
	for _, a := range appts {
		resp.Appointments = append(resp.Appointments, &schedulingv1.Appointment{
			AppointmentId:   a.ID,
			RequesterId:     a.RequesterID,
			Kind:            a.Kind,
			StartAt:         timestamppb.New(a.StartAt.UTC()),
			DurationMinutes: int32(a.DurationMinutes),
			Status:          a.Status,
		})
	}
	return resp, nil
}

func (s *server) CheckDateBookable(ctx context.Context, req *schedulingv1.DateBookableRequest) (*schedulingv1.DateBookableResponse, error) {
	day, err := time.Parse(model.DateKey, req.GetDate())
	if err != nil {
		return &schedulingv1.DateBookableResponse{Date: req.GetDate(), Bookable: false}, nil
	}
	bookable, err := s.svc.IsDateBookable(ctx, day)
	if err != nil {
		return nil, err
	}
	return &schedulingv1.DateBookableResponse{Date: req.GetDate(), Bookable: bookable}, nil
}
