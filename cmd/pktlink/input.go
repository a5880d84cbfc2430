package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/norasector/pktlink/pkg/packet"
)

const controlPrefix = "!"

type sender interface {
	Send(ctx context.Context, payload []byte) error
	SendControl(ctx context.Context, name string) error
	CloseInput()
}

// feedInput sends one payload per line; lines starting with "!" are control messages.
// The input is closed once r is exhausted.
func feedInput(ctx context.Context, r io.Reader, s sender) (int, error) {
	defer s.CloseInput()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), packet.MaxPayloadLength+len(controlPrefix)+1)

	lines := 0
	for scanner.Scan() {
		line := scanner.Text()
		var err error
		if name, ok := strings.CutPrefix(line, controlPrefix); ok {
			err = s.SendControl(ctx, name)
		} else {
			err = s.Send(ctx, []byte(line))
		}
		if err != nil {
			return lines, err
		}
		lines++
	}
	return lines, scanner.Err()
}
