package location

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// Reporter pushes unit positions to the console over a client stream. A
// broken stream is reopened lazily on the next report.
type Reporter struct {
	unitID string
	conn   *grpc.ClientConn
	logger *zap.Logger

	mu     sync.Mutex
	stream Positions_StreamPositionsClient
}

// NewReporter dials the console's ingest endpoint.
func NewReporter(target, unitID string, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial position ingest %s: %w", target, err)
	}
	return &Reporter{unitID: unitID, conn: conn, logger: logger}, nil
}

// Report sends one position. The timestamp travels as unix seconds.
func (r *Reporter) Report(ctx context.Context, point domain.GeoPoint, label string, ts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream == nil {
		stream, err := NewPositionsStream(ctx, r.conn)
		if err != nil {
			return fmt.Errorf("open position stream: %w", err)
		}
		r.stream = stream
	}
	msg := &UnitPosition{UnitId: r.unitID, Lat: point.Lat, Lng: point.Lng, Label: label, Ts: ts}
	if err := r.stream.Send(msg); err != nil {
		r.stream = nil
		return fmt.Errorf("send position: %w", err)
	}
	return nil
}

// Close drains the stream and closes the connection.
func (r *Reporter) Close() error {
	r.mu.Lock()
	if r.stream != nil {
		if _, err := r.stream.CloseAndRecv(); err != nil {
			r.logger.Debug("position stream close", zap.Error(err))
		}
		r.stream = nil
	}
	r.mu.Unlock()
	return r.conn.Close()
}
