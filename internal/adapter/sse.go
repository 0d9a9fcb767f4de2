package adapter

import (
	"bufio"
	"bytes"
	"io"
)

const sseDone = "[DONE]"

// readSSE calls onData with the payload of every "data:" line until the
// server sends [DONE], onData asks to stop, or the body ends.
func readSSE(r io.Reader, onData func(data []byte) (stop bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[len("data:"):])
		if string(data) == sseDone {
			return nil
		}
		stop, err := onData(data)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return scanner.Err()
}
