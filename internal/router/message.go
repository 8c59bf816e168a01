// Package router dispatches control messages from the platform to the
// connection registry and connectors.
package router

import (
	"sort"

	"github.com/eugenetaranov/sftpconn/internal/connector/sftp"
)

// Kind identifies a control message.
type Kind string

// Control message kinds understood by the router.
const (
	KindPing           Kind = "OUTGOING_SFTP_PING"
	KindCreate         Kind = "OUTGOING_SFTP_CREATE"
	KindEdit           Kind = "OUTGOING_SFTP_EDIT"
	KindDelete         Kind = "OUTGOING_SFTP_DELETE"
	KindChangePassword Kind = "OUTGOING_SFTP_CHANGE_PASSWORD"
	KindExecute        Kind = "OUTGOING_SFTP_EXECUTE"

	// Generic connection messages routed to the same handlers as their SFTP
	// counterparts.
	KindGenericEdit           Kind = "GENERIC_CONNECTION_EDIT"
	KindGenericChangePassword Kind = "GENERIC_CONNECTION_CHANGE_PASSWORD"
)

// Message is a decoded control message. Connection fields are inlined, so
// `id` and `password` double as the target of DELETE, EXECUTE and
// CHANGE_PASSWORD.
type Message struct {
	Action Kind `json:"action" yaml:"action"`

	// CID and Data are used by EXECUTE.
	CID         string `json:"cid,omitempty" yaml:"cid,omitempty"`
	Data        string `json:"data,omitempty" yaml:"data,omitempty"`
	IsReconnect bool   `json:"is_reconnect,omitempty" yaml:"is_reconnect,omitempty"`

	sftp.Config `yaml:",inline"`
}

// Response is the result of dispatching one message. Status follows HTTP
// status codes.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK reports whether the message was handled successfully.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// ConnectionInfo describes a connection in responses. Credentials are never included.
type ConnectionInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
	Address  string `json:"address"`
	Command  string `json:"command"`
}

func connectionInfo(conn *sftp.Connector) *ConnectionInfo {
	def := conn.Definition()
	return &ConnectionInfo{
		ID:       def.ID(),
		Name:     def.Name(),
		IsActive: def.IsActive(),
		Address:  conn.String(),
		Command:  conn.Command().String(),
	}
}

func sortKinds(kinds []Kind) {
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
}
