package location

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// PositionSink receives ingested unit positions. Satisfied by the roster
// store.
type PositionSink interface {
	Apply(unitID string, point domain.GeoPoint, label string, at time.Time) bool
}

// Server implements the PositionsServer ingest contract, feeding streamed
// unit positions into the roster.
type Server struct {
	sink   PositionSink
	logger *zap.Logger
}

// NewServer constructs a server.
func NewServer(sink PositionSink, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{sink: sink, logger: logger}
}

// StreamPositions ingests unit positions until the client closes the stream.
// Reports for units missing from the roster are counted and dropped; a unit
// that appears on a later roster poll picks up from its next report.
func (s *Server) StreamPositions(stream Positions_StreamPositionsServer) error {
	var received int64
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{Received: received})
		}
		if err != nil {
			return err
		}
		if msg.UnitId == "" {
			continue
		}
		at := time.Unix(msg.Ts, 0).UTC()
		if msg.Ts == 0 {
			at = time.Now().UTC()
		}
		point := domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng}
		if s.sink.Apply(msg.UnitId, point, msg.Label, at) {
			received++
			ingestedPositions.WithLabelValues("applied").Inc()
		} else {
			ingestedPositions.WithLabelValues("unknown_unit").Inc()
			s.logger.Debug("position for unknown unit dropped", zap.String("unit_id", msg.UnitId))
		}
	}
}
