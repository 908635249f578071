package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cablewatch/cablemap/internal/config"
	"github.com/cablewatch/cablemap/internal/storage"
)

var _ storage.FaultStore = (*Backend)(nil)

func TestNew(t *testing.T) {
	b := New(config.DBConfig{Host: "db.internal", Database: "cablemap"}, nil)

	assert.NotNil(t, b)
	assert.Equal(t, "db.internal", b.cfg.Host)
	assert.Nil(t, b.Backend, "connection is deferred to Init")
}

func TestClose_BeforeInit(t *testing.T) {
	b := New(config.DBConfig{}, nil)
	assert.NoError(t, b.Close())
}

func TestInit_Unreachable(t *testing.T) {
	b := New(config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "d"}, nil)

	err := b.Init()
	assert.Error(t, err)
	assert.Nil(t, b.Backend)
}
