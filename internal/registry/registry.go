// Package registry keeps the set of outgoing SFTP connections known to the
// connector, keyed by connection id.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/eugenetaranov/sftpconn/internal/connector"
	"github.com/eugenetaranov/sftpconn/internal/connector/sftp"
)

// entry pairs a connection with the command-number sequence of its id, which
// outlives individual connector instances.
type entry struct {
	conn *sftp.Connector
	seq  *sftp.Sequence
}

// Registry maps connection ids to connectors.
//
// Lookups share a read lock; create, edit, delete and password changes take
// the write lock, so a replaced entry is swapped in atomically.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*entry
	factory sftp.FactoryFunc
	logger  *zap.Logger
}

// New creates an empty registry that builds connectors with factory.
func New(factory sftp.FactoryFunc, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[int]*entry),
		factory: factory,
		logger:  logger.Named("registry"),
	}
}

// Create validates cfg and registers a new connection for it.
func (r *Registry) Create(cfg sftp.Config) (*sftp.Connector, error) {
	seq := &sftp.Sequence{}
	conn, err := r.factory(cfg, seq)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[cfg.ID]; exists {
		return nil, &connector.ConflictError{ID: cfg.ID}
	}
	r.entries[cfg.ID] = &entry{conn: conn, seq: seq}

	r.logger.Info("Connection created", zap.Object("definition", conn.Definition()))
	return conn, nil
}

// Edit replaces the definition of an existing connection. Credentials left
// empty in cfg are carried over from the current definition.
func (r *Registry) Edit(cfg sftp.Config) (*sftp.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[cfg.ID]
	if !ok {
		return nil, &connector.NotFoundError{ID: cfg.ID}
	}

	current := e.conn.Definition().Config()
	if cfg.Password == "" {
		cfg.Password = current.Password
	}
	if cfg.Secret == "" {
		cfg.Secret = current.Secret
	}

	conn, err := r.factory(cfg, e.seq)
	if err != nil {
		return nil, err
	}
	e.conn = conn

	r.logger.Info("Connection edited", zap.Object("definition", conn.Definition()))
	return conn, nil
}

// ChangePassword replaces the password of an existing connection, leaving the
// rest of its definition unchanged.
func (r *Registry) ChangePassword(id int, password string) (*sftp.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, &connector.NotFoundError{ID: id}
	}

	cfg := e.conn.Definition().Config()
	cfg.Password = password

	conn, err := r.factory(cfg, e.seq)
	if err != nil {
		return nil, err
	}
	e.conn = conn

	r.logger.Info("Connection password changed", zap.Int("id", id))
	return conn, nil
}

// Delete removes a connection.
func (r *Registry) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return &connector.NotFoundError{ID: id}
	}
	delete(r.entries, id)

	if err := e.conn.Close(); err != nil {
		r.logger.Warn("Error closing deleted connection", zap.Int("id", id), zap.Error(err))
	}
	r.logger.Info("Connection deleted", zap.Int("id", id))
	return nil
}

// Get returns the connector registered under id.
func (r *Registry) Get(id int) (*sftp.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, &connector.NotFoundError{ID: id}
	}
	return e.conn, nil
}

// Rebuild replaces the connector under id with a fresh one built from its
// stored definition.
func (r *Registry) Rebuild(id int) (*sftp.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, &connector.NotFoundError{ID: id}
	}

	conn, err := r.factory(e.conn.Definition().Config(), e.seq)
	if err != nil {
		return nil, err
	}
	e.conn = conn

	r.logger.Debug("Connection rebuilt", zap.Int("id", id))
	return conn, nil
}

// List returns all connectors ordered by id.
func (r *Registry) List() []*sftp.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	conns := make([]*sftp.Connector, 0, len(ids))
	for _, id := range ids {
		conns = append(conns, r.entries[id].conn)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
