package sdp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sppcheck/internal/device"
)

// uuidL2CAP is the search pattern; every record reachable over L2CAP matches.
const uuidL2CAP uint16 = 0x0100

// readBufferSize is comfortably above the default L2CAP MTU of 672 bytes.
const readBufferSize = 4096

// maxTransactionRounds caps continuation round trips so a misbehaving
// server cannot keep the client looping.
const maxTransactionRounds = 256

// Client runs SDP transactions over a packet-oriented transport where each
// Write sends one PDU and each Read returns one PDU.
type Client struct {
	rw       io.ReadWriter
	logger   *logrus.Logger
	tid      uint16
	maxBytes uint16
}

// NewClient creates a client over rw. A nil logger discards log output.
func NewClient(rw io.ReadWriter, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Client{rw: rw, logger: logger, maxBytes: defaultMaxAttributeByteCount}
}

// SearchAttributes runs a ServiceSearchAttribute transaction for the given
// UUID pattern and returns every attribute of every matching record.
func (c *Client) SearchAttributes(ctx context.Context, pattern []Element) ([]Record, error) {
	var (
		collected []byte
		cont      []byte
	)

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if round >= maxTransactionRounds {
			return nil, fmt.Errorf("sdp: no final response after %d continuation rounds", round)
		}

		params, err := searchAttributeParams(pattern, c.maxBytes, cont)
		if err != nil {
			return nil, err
		}

		resp, err := c.roundTrip(ctx, pdu{id: pduServiceSearchAttributeRequest, params: params})
		if err != nil {
			return nil, err
		}

		switch resp.id {
		case pduErrorResponse:
			return nil, parseErrorResponse(resp.params)
		case pduServiceSearchAttributeResponse:
		default:
			return nil, fmt.Errorf("sdp: unexpected PDU 0x%02x", resp.id)
		}

		fragment, next, err := parseSearchAttributeResponse(resp.params)
		if err != nil {
			return nil, err
		}
		collected = append(collected, fragment...)

		c.logger.WithFields(logrus.Fields{
			"round":        round,
			"fragment":     len(fragment),
			"continuation": len(next),
		}).Debug("SDP response fragment")

		if len(next) == 0 {
			break
		}
		cont = append(cont[:0], next...)
	}

	return parseRecords(collected)
}

// Services returns every record reachable over L2CAP as device.Service values.
func (c *Client) Services(ctx context.Context) ([]device.Service, error) {
	records, err := c.SearchAttributes(ctx, []Element{UUID16(uuidL2CAP)})
	if err != nil {
		return nil, err
	}
	services := make([]device.Service, 0, len(records))
	for _, rec := range records {
		services = append(services, rec.Service())
	}
	return services, nil
}

func (c *Client) roundTrip(ctx context.Context, req pdu) (pdu, error) {
	c.tid++
	req.tid = c.tid

	if _, err := c.rw.Write(req.marshal()); err != nil {
		return pdu{}, c.transportError(ctx, "write", err)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.rw.Read(buf)
		if err != nil {
			return pdu{}, c.transportError(ctx, "read", err)
		}
		resp, err := parsePDU(buf[:n])
		if err != nil {
			return pdu{}, err
		}
		if resp.tid != req.tid {
			c.logger.WithFields(logrus.Fields{
				"expected": req.tid,
				"got":      resp.tid,
			}).Debug("Dropping SDP response with stale transaction id")
			continue
		}
		return resp, nil
	}
}

// transportError prefers the context error when the transport failed
// because ctx closed it.
// queryServices lists the records behind conn within timeout. conn is closed
// once the deadline passes or ctx ends so that a pending Read returns. A zero
// timeout leaves the query bounded by ctx alone.
func queryServices(ctx context.Context, conn io.ReadWriteCloser, timeout time.Duration, logger *logrus.Logger) ([]device.Service, error) {
	qctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(qctx, func() { _ = conn.Close() })
	defer stop()

	services, err := NewClient(conn, logger).Services(qctx)
	if err != nil && ctx.Err() == nil && errors.Is(qctx.Err(), context.DeadlineExceeded) {
		return nil, timeoutError(timeout)
	}
	return services, err
}

func timeoutError(timeout time.Duration) error {
	return fmt.Errorf("SDP query timed out after %s: %w", timeout, context.DeadlineExceeded)
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("sdp %s: %w", op, err)
}
