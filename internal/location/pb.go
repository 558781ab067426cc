package location

import (
	"context"

	"google.golang.org/grpc"
)

// UnitPosition is one streamed position report from a field unit.
type UnitPosition struct {
	UnitId string
	Lat    float64
	Lng    float64
	Label  string
	Ts     int64
}

// Ack is returned when the stream closes.
type Ack struct{ Received int64 }

// PositionsServer defines the ingest contract.
type PositionsServer interface {
	StreamPositions(Positions_StreamPositionsServer) error
}

// RegisterPositionsServer registers service implementation.
func RegisterPositionsServer(s *grpc.Server, srv PositionsServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "fleetwatch.Positions",
		HandlerType: (*PositionsServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "StreamPositions",
			Handler:       _Positions_StreamPositions_Handler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, srv)
}

// Positions_StreamPositionsServer defines the server side of the stream.
type Positions_StreamPositionsServer interface {
	grpc.ServerStream
	SendAndClose(*Ack) error
	Recv() (*UnitPosition, error)
}

func _Positions_StreamPositions_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(PositionsServer).StreamPositions(&positionsStreamServer{ServerStream: stream})
}

type positionsStreamServer struct {
	grpc.ServerStream
}

func (s *positionsStreamServer) SendAndClose(ack *Ack) error { return s.ServerStream.SendMsg(ack) }

func (s *positionsStreamServer) Recv() (*UnitPosition, error) {
	msg := new(UnitPosition)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Positions_StreamPositionsClient defines the client side of the stream.
type Positions_StreamPositionsClient interface {
	grpc.ClientStream
	Send(*UnitPosition) error
	CloseAndRecv() (*Ack, error)
}

// NewPositionsStream opens a client stream against a dialed connection.
func NewPositionsStream(ctx context.Context, conn grpc.ClientConnInterface) (Positions_StreamPositionsClient, error) {
	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "StreamPositions",
		ServerStreams: true,
		ClientStreams: true,
	}, "/fleetwatch.Positions/StreamPositions")
	if err != nil {
		return nil, err
	}
	return &positionsStreamClient{ClientStream: stream}, nil
}

type positionsStreamClient struct {
	grpc.ClientStream
}

func (c *positionsStreamClient) Send(msg *UnitPosition) error { return c.ClientStream.SendMsg(msg) }

func (c *positionsStreamClient) CloseAndRecv() (*Ack, error) {
	if err := c.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	ack := new(Ack)
	if err := c.ClientStream.RecvMsg(ack); err != nil {
		return nil, err
	}
	return ack, nil
}
