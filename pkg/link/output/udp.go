package output

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/pktlink/pkg/link/config"
	"github.com/norasector/pktlink/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const receiveChannels = 8

// UDPOutput forwards every packet to each destination as a length-prefixed protobuf
// Struct: a little endian uint16 length followed by the marshaled message.
type UDPOutput struct {
	dests    []config.OutputDestination
	recvChan chan *Received
	metrics  api.WriteAPI
	logger   zerolog.Logger
}

type UDPOption func(u *UDPOutput)

func WithMetrics(metrics api.WriteAPI) UDPOption {
	return func(u *UDPOutput) {
		u.metrics = metrics
	}
}

func WithLogger(logger zerolog.Logger) UDPOption {
	return func(u *UDPOutput) {
		u.logger = logger
	}
}

func NewUDPOutput(dests []config.OutputDestination, opts ...UDPOption) *UDPOutput {
	u := &UDPOutput{
		dests:    dests,
		recvChan: make(chan *Received, receiveChannels),
		metrics:  &util.MockWriteAPI{},
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *UDPOutput) Receive() chan<- *Received {
	return u.recvChan
}

// ToProtobuf renders a packet as a Struct. Payload bytes are base64 encoded.
func ToProtobuf(r *Received) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"session_id": r.SessionID,
		"sequence":   float64(r.Sequence),
		"ok":         r.OK(),
		"timestamp":  r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if r.OK() {
		fields["payload"] = base64.StdEncoding.EncodeToString(r.Payload)
		fields["length"] = float64(len(r.Payload))
	} else {
		fields["error"] = r.Err.Error()
	}
	return structpb.NewStruct(fields)
}

// Encode returns the datagram for r.
func Encode(r *Received) ([]byte, error) {
	pb, err := ToProtobuf(r)
	if err != nil {
		return nil, err
	}
	encoded, err := proto.Marshal(pb)
	if err != nil {
		return nil, err
	}
	if len(encoded) > 0xffff {
		return nil, fmt.Errorf("encoded message is %d bytes, too large for the length prefix", len(encoded))
	}

	var msgBuf bytes.Buffer
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

func (u *UDPOutput) Start(ctx context.Context) error {
	destAddrs := make([]*net.UDPAddr, 0, len(u.dests))
	for _, dest := range u.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return err
		}
		if len(ips) == 0 {
			return fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		u.logger.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("udp output starting")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-u.recvChan:
			msg, err := Encode(r)
			if err != nil {
				u.logger.Warn().Err(err).Uint64("sequence", r.Sequence).Msg("error encoding packet")
				continue
			}

			sent, dropped := 0, 0
			for _, destAddr := range destAddrs {
				if _, err := conn.WriteToUDP(msg, destAddr); err != nil {
					u.logger.Error().Err(err).Str("dest", destAddr.String()).Msg("error writing")
					dropped++
					continue
				}
				sent++
			}

			go u.metrics.WritePoint(influxdb2.NewPoint("pktlink.udp.sent",
				map[string]string{
					"session_id": r.SessionID,
				},
				map[string]interface{}{
					"datagram_length": len(msg),
					"sent":            sent,
					"dropped":         dropped,
				}, time.Now()))
		}
	}
}
