// Package client implements the host-side half of the adaptor: it connects
// back to the adaptor's action socket, drains actions one at a time and
// executes them against the running 3ds Max instance.
package client

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openjd-adaptors/max-openjd/adaptor/ipc"
	"github.com/openjd-adaptors/max-openjd/client/maxscript"
	"github.com/openjd-adaptors/max-openjd/client/renderhandlers"
)

const pollInterval = 100 * time.Millisecond

// Client polls the adaptor for actions and dispatches them.
type Client struct {
	conn *ipc.Conn
	eng  maxscript.Engine
	out  io.Writer

	actions map[string]renderhandlers.ActionFunc
}

// New dials the adaptor socket and prepares the base action table. Render
// actions are installed when the renderer action arrives.
func New(socketPath string, eng maxscript.Engine, out io.Writer) (*Client, error) {
	conn, err := ipc.Dial(socketPath, 30*time.Second)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, eng: eng, out: out}
	c.actions = map[string]renderhandlers.ActionFunc{
		"renderer": c.setRenderer,
	}
	return c, nil
}

// setRenderer installs the action table of the handler matching the
// renderer. It must be the first action of a session.
func (c *Client) setRenderer(p renderhandlers.Params) error {
	name, _ := p["renderer"].(string)
	log.WithFields(log.Fields{"renderer": name}).Debug("Setting render handler")
	handler := renderhandlers.Get(name, c.eng, c.out)
	for action, fn := range handler.Actions() {
		c.actions[action] = fn
	}
	return nil
}

// Poll drains actions until the adaptor sends close or an action fails.
// Action failures are reported back to the adaptor before the client exits.
func (c *Client) Poll() error {
	defer c.conn.Close()
	for {
		a, ok, err := c.conn.Next()
		if err != nil {
			return errors.Wrap(err, "polling for actions")
		}
		if !ok {
			time.Sleep(pollInterval)
			continue
		}

		if a.Name == ipc.ActionClose || a.Name == "graceful_shutdown" {
			c.conn.Done(a.ID, "")
			return c.eng.Close()
		}

		fn, known := c.actions[a.Name]
		if !known {
			msg := fmt.Sprintf("unknown action '%s'", a.Name)
			fmt.Fprintf(c.out, "Error: MaxClient: %s\n", msg)
			c.conn.Done(a.ID, msg)
			return errors.New(msg)
		}

		if err := fn(renderhandlers.Params(a.Params)); err != nil {
			c.conn.Done(a.ID, err.Error())
			return errors.Wrapf(err, "action %s", a.Name)
		}
		if err := c.conn.Done(a.ID, ""); err != nil {
			return errors.Wrap(err, "acknowledging action")
		}
	}
}
