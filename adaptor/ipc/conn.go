package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

// Conn is the client side of the action protocol.
type Conn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	enc     *json.Encoder
}

// Dial connects to the adaptor socket, retrying with exponential backoff
// until the server is up or maxWait elapses. The adaptor starts the server
// before launching the client, so in practice the first attempt succeeds.
func Dial(socketPath string, maxWait time.Duration) (*Conn, error) {
	var conn net.Conn
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = maxWait
	err := backoff.Retry(func() error {
		var err error
		conn, err = net.DialTimeout("unix", socketPath, time.Second)
		return err
	}, b)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to adaptor socket %s", socketPath)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Conn{conn: conn, scanner: scanner, enc: json.NewEncoder(conn)}, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) roundTrip(req request) (reply, error) {
	if err := c.enc.Encode(req); err != nil {
		return reply{}, errors.Wrap(err, "writing request")
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return reply{}, errors.Wrap(err, "reading reply")
		}
		return reply{}, errors.New("adaptor closed the connection")
	}
	var rep reply
	if err := json.Unmarshal(c.scanner.Bytes(), &rep); err != nil {
		return reply{}, errors.Wrap(err, "decoding reply")
	}
	return rep, nil
}

// Next asks the adaptor for the next action. The second return is false when
// the queue is currently empty; callers poll again after a short sleep.
func (c *Conn) Next() (Action, bool, error) {
	rep, err := c.roundTrip(request{Type: "next"})
	if err != nil {
		return Action{}, false, err
	}
	if rep.Type != "action" || rep.Action == nil {
		return Action{}, false, nil
	}
	return *rep.Action, true, nil
}

// Done reports the result of an action. An empty errMsg means success.
func (c *Conn) Done(id string, errMsg string) error {
	_, err := c.roundTrip(request{Type: "done", ID: id, Error: errMsg})
	return err
}
